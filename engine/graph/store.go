// Package graph is the Neo4j conversation memory store. Chats, turns,
// vehicles and issues are nodes; every upsert is a single MERGE statement.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// Store implements memory.Store on Neo4j.
type Store struct {
	opener SessionOpener
}

// New creates a Store over a driver. database may be empty for the default.
func New(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{opener: driverOpener{driver: driver, database: database}}
}

// NewWithOpener creates a Store with a custom session opener.
func NewWithOpener(opener SessionOpener) *Store {
	return &Store{opener: opener}
}

var schema = []string{
	`CREATE CONSTRAINT chat_id IF NOT EXISTS FOR (c:Chat) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT turn_id IF NOT EXISTS FOR (t:Turn) REQUIRE t.id IS UNIQUE`,
	`CREATE CONSTRAINT vehicle_id IF NOT EXISTS FOR (v:Vehicle) REQUIRE v.id IS UNIQUE`,
	`CREATE INDEX turn_user IF NOT EXISTS FOR (t:Turn) ON (t.user_id)`,
	`CREATE INDEX chat_vehicle IF NOT EXISTS FOR (c:Chat) ON (c.vehicle_id)`,
}

// EnsureSchema creates the constraints and indexes the queries rely on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.exec(ctx, "schema", stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// exec runs a statement and drains the result.
func (s *Store) exec(ctx context.Context, op, cypher string, params map[string]any) error {
	_, err := s.query(ctx, op, cypher, params, func(*neo4j.Record) error { return nil })
	return err
}

// query runs cypher and calls each for every record.
func (s *Store) query(ctx context.Context, op, cypher string, params map[string]any, each func(*neo4j.Record) error) (int, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return 0, fmt.Errorf("graph: %s: %w", op, err)
	}
	n := 0
	for result.Next(ctx) {
		if err := each(result.Record()); err != nil {
			return n, fmt.Errorf("graph: %s: %w", op, err)
		}
		n++
	}
	if err := result.Err(); err != nil {
		return n, fmt.Errorf("graph: %s: %w", op, err)
	}
	return n, nil
}

const turnReturn = `RETURN t.id AS id, c.id AS chat_id, t.user_id AS user_id, t.vehicle_id AS vehicle_id,
       t.prompt AS prompt, t.response AS response, t.created_at AS created_at`

func (s *Store) AppendTurn(ctx context.Context, t domain.ConversationTurn) error {
	resp, err := json.Marshal(t.Response)
	if err != nil {
		return fmt.Errorf("graph: encode response: %w", err)
	}
	return s.exec(ctx, "append turn", `
		MERGE (c:Chat {id: $chat_id})
		ON CREATE SET c.user_id = $user_id, c.created_at = $created_at
		SET c.updated_at = $created_at,
		    c.vehicle_id = CASE WHEN $vehicle_id = '' THEN c.vehicle_id ELSE $vehicle_id END
		FOREACH (_ IN CASE WHEN $vehicle_id = '' THEN [] ELSE [1] END |
		  MERGE (v:Vehicle {id: $vehicle_id})
		  MERGE (c)-[:ABOUT]->(v))
		CREATE (c)-[:HAS_TURN]->(:Turn {id: $id, user_id: $user_id, vehicle_id: $vehicle_id,
		  prompt: $prompt, response: $response, action: $action, created_at: $created_at})`,
		map[string]any{
			"id":         t.ID,
			"chat_id":    t.ChatID,
			"user_id":    t.UserID,
			"vehicle_id": t.VehicleID,
			"prompt":     t.Prompt,
			"response":   string(resp),
			"action":     string(t.Response.Action),
			"created_at": t.CreatedAt,
		})
}

func (s *Store) collectTurns(ctx context.Context, op, cypher string, params map[string]any) ([]domain.ConversationTurn, error) {
	var out []domain.ConversationTurn
	_, err := s.query(ctx, op, cypher, params, func(rec *neo4j.Record) error {
		t, err := turnFromRecord(rec)
		if err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (s *Store) LoadRecentTurns(ctx context.Context, chatID string, limit int) ([]domain.ConversationTurn, error) {
	turns, err := s.collectTurns(ctx, "recent turns", `
		MATCH (c:Chat {id: $chat_id})-[:HAS_TURN]->(t:Turn)
		`+turnReturn+`
		ORDER BY t.created_at DESC LIMIT $limit`,
		map[string]any{"chat_id": chatID, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].CreatedAt.Before(turns[j].CreatedAt) })
	return turns, nil
}

func (s *Store) LoadTranscript(ctx context.Context, chatID, userID string) ([]domain.ConversationTurn, error) {
	return s.collectTurns(ctx, "transcript", `
		MATCH (c:Chat {id: $chat_id})-[:HAS_TURN]->(t:Turn {user_id: $user_id})
		`+turnReturn+`
		ORDER BY t.created_at`,
		map[string]any{"chat_id": chatID, "user_id": userID})
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]domain.ChatOverview, error) {
	var out []domain.ChatOverview
	_, err := s.query(ctx, "list chats", `
		MATCH (c:Chat)-[:HAS_TURN]->(t:Turn {user_id: $user_id})
		WITH c, t ORDER BY t.created_at DESC
		WITH c, collect(t) AS turns
		WITH c, turns[0] AS t, size(turns) AS turn_count
		`+turnReturn+`, turn_count
		ORDER BY t.created_at DESC`,
		map[string]any{"user_id": userID},
		func(rec *neo4j.Record) error {
			t, err := turnFromRecord(rec)
			if err != nil {
				return err
			}
			out = append(out, domain.NewChatOverview(t, int(intVal(rec, "turn_count"))))
			return nil
		})
	return out, err
}

const summaryReturn = `RETURN c.id AS chat_id, c.vehicle_id AS vehicle_id, c.summary AS summary,
       c.severity AS severity, c.summary_updated_at AS updated_at`

func (s *Store) loadSummary(ctx context.Context, op, cypher string, params map[string]any) (*domain.ChatIssueSummary, error) {
	var found *domain.ChatIssueSummary
	_, err := s.query(ctx, op, cypher, params, func(rec *neo4j.Record) error {
		cs := summaryFromRecord(rec)
		found = &cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Store) LoadChatSummary(ctx context.Context, chatID string) (*domain.ChatIssueSummary, error) {
	return s.loadSummary(ctx, "chat summary", `
		MATCH (c:Chat {id: $chat_id}) WHERE c.summary IS NOT NULL
		`+summaryReturn,
		map[string]any{"chat_id": chatID})
}

func (s *Store) LoadVehicleSummary(ctx context.Context, vehicleID string) (*domain.ChatIssueSummary, error) {
	return s.loadSummary(ctx, "vehicle summary", `
		MATCH (c:Chat {vehicle_id: $vehicle_id}) WHERE c.summary IS NOT NULL
		`+summaryReturn+`
		ORDER BY c.summary_updated_at DESC LIMIT 1`,
		map[string]any{"vehicle_id": vehicleID})
}

func (s *Store) UpsertChatSummary(ctx context.Context, cs domain.ChatIssueSummary) error {
	return s.exec(ctx, "upsert chat summary", `
		MERGE (c:Chat {id: $chat_id})
		SET c.summary = $summary, c.severity = $severity, c.summary_updated_at = $updated_at,
		    c.vehicle_id = CASE WHEN $vehicle_id = '' THEN c.vehicle_id ELSE $vehicle_id END`,
		map[string]any{
			"chat_id":    cs.ChatID,
			"vehicle_id": cs.VehicleID,
			"summary":    cs.Summary,
			"severity":   string(cs.Severity),
			"updated_at": cs.UpdatedAt,
		})
}

func (s *Store) LoadOpenIssues(ctx context.Context, vehicleID string) ([]domain.VehicleIssueRecord, error) {
	var out []domain.VehicleIssueRecord
	_, err := s.query(ctx, "open issues", `
		MATCH (v:Vehicle {id: $vehicle_id})-[:HAS_ISSUE]->(i:Issue {open: true})
		RETURN v.id AS vehicle_id, i.key AS issue_key, i.title AS title, i.summary AS summary,
		       i.severity AS severity, i.created_at AS created_at, i.updated_at AS updated_at
		ORDER BY i.updated_at DESC`,
		map[string]any{"vehicle_id": vehicleID},
		func(rec *neo4j.Record) error {
			out = append(out, issueFromRecord(rec))
			return nil
		})
	return out, err
}

// UpsertIssue merges on the open issue with the same key, so a resolved
// issue is kept and a new node is created.
func (s *Store) UpsertIssue(ctx context.Context, r domain.VehicleIssueRecord) error {
	return s.exec(ctx, "upsert issue", `
		MERGE (v:Vehicle {id: $vehicle_id})
		MERGE (v)-[:HAS_ISSUE]->(i:Issue {key: $issue_key, open: true})
		ON CREATE SET i.created_at = $created_at
		SET i.title = $title, i.summary = $summary, i.severity = $severity, i.updated_at = $updated_at`,
		map[string]any{
			"vehicle_id": r.VehicleID,
			"issue_key":  r.IssueKey,
			"title":      r.Title,
			"summary":    r.Summary,
			"severity":   string(r.Severity),
			"created_at": r.CreatedAt,
			"updated_at": r.UpdatedAt,
		})
}

// ResolveIssue closes the open issue with key. It reports whether one was open.
func (s *Store) ResolveIssue(ctx context.Context, vehicleID, key string, at time.Time) (bool, error) {
	var closed int64
	_, err := s.query(ctx, "resolve issue", `
		MATCH (:Vehicle {id: $vehicle_id})-[:HAS_ISSUE]->(i:Issue {key: $issue_key, open: true})
		SET i.open = false, i.resolved_at = $at
		RETURN count(i) AS closed`,
		map[string]any{"vehicle_id": vehicleID, "issue_key": key, "at": at},
		func(rec *neo4j.Record) error {
			closed = intVal(rec, "closed")
			return nil
		})
	return closed > 0, err
}
