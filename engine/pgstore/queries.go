package pgstore

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

const turnColumns = `id, chat_id, user_id, vehicle_id, prompt, response, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (domain.ConversationTurn, error) {
	var (
		t       domain.ConversationTurn
		vehicle stdsql.NullString
		resp    []byte
	)
	if err := row.Scan(&t.ID, &t.ChatID, &t.UserID, &vehicle, &t.Prompt, &resp, &t.CreatedAt); err != nil {
		return t, err
	}
	t.VehicleID = vehicle.String
	if err := json.Unmarshal(resp, &t.Response); err != nil {
		return t, fmt.Errorf("decode response of turn %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) queryTurns(ctx context.Context, op, query string, args ...any) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: %s: %w", op, err)
	}
	defer rows.Close()
	var out []domain.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: %s: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: %s: %w", op, err)
	}
	return out, nil
}

func (s *Store) AppendTurn(ctx context.Context, t domain.ConversationTurn) error {
	resp, err := encodeResponse(t.Response)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (`+turnColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.ChatID, t.UserID, nullable(t.VehicleID), t.Prompt, string(resp), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: append turn: %w", err)
	}
	return nil
}

func (s *Store) LoadRecentTurns(ctx context.Context, chatID string, limit int) ([]domain.ConversationTurn, error) {
	turns, err := s.queryTurns(ctx, "recent turns",
		`SELECT `+turnColumns+` FROM conversation_turns
		 WHERE chat_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *Store) LoadTranscript(ctx context.Context, chatID, userID string) ([]domain.ConversationTurn, error) {
	return s.queryTurns(ctx, "transcript",
		`SELECT `+turnColumns+` FROM conversation_turns
		 WHERE chat_id = $1 AND user_id = $2 ORDER BY created_at, id`, chatID, userID)
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]domain.ChatOverview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (chat_id) `+turnColumns+`, COUNT(*) OVER (PARTITION BY chat_id)
		 FROM conversation_turns WHERE user_id = $1
		 ORDER BY chat_id, created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list chats: %w", err)
	}
	defer rows.Close()
	var out []domain.ChatOverview
	for rows.Next() {
		var (
			t       domain.ConversationTurn
			vehicle stdsql.NullString
			resp    []byte
			count   int
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &t.UserID, &vehicle, &t.Prompt, &resp, &t.CreatedAt, &count); err != nil {
			return nil, fmt.Errorf("pgstore: list chats: %w", err)
		}
		if err := json.Unmarshal(resp, &t.Response); err != nil {
			return nil, fmt.Errorf("pgstore: list chats: %w", err)
		}
		out = append(out, domain.NewChatOverview(t, count))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list chats: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) loadSummary(ctx context.Context, op, where string, arg string) (*domain.ChatIssueSummary, error) {
	var (
		cs      domain.ChatIssueSummary
		vehicle stdsql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, vehicle_id, summary, severity, updated_at FROM chat_issue_summaries
		 WHERE `+where+` ORDER BY updated_at DESC LIMIT 1`, arg).
		Scan(&cs.ChatID, &vehicle, &cs.Summary, &cs.Severity, &cs.UpdatedAt)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: %s: %w", op, err)
	}
	cs.VehicleID = vehicle.String
	return &cs, nil
}

func (s *Store) LoadChatSummary(ctx context.Context, chatID string) (*domain.ChatIssueSummary, error) {
	return s.loadSummary(ctx, "chat summary", "chat_id = $1", chatID)
}

func (s *Store) LoadVehicleSummary(ctx context.Context, vehicleID string) (*domain.ChatIssueSummary, error) {
	return s.loadSummary(ctx, "vehicle summary", "vehicle_id = $1", vehicleID)
}

func (s *Store) UpsertChatSummary(ctx context.Context, cs domain.ChatIssueSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_issue_summaries (chat_id, vehicle_id, summary, severity, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   vehicle_id = COALESCE(EXCLUDED.vehicle_id, chat_issue_summaries.vehicle_id),
		   summary = EXCLUDED.summary,
		   severity = EXCLUDED.severity,
		   updated_at = EXCLUDED.updated_at`,
		cs.ChatID, nullable(cs.VehicleID), cs.Summary, string(cs.Severity), cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: upsert chat summary: %w", err)
	}
	return nil
}

func (s *Store) LoadOpenIssues(ctx context.Context, vehicleID string) ([]domain.VehicleIssueRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vehicle_id, issue_key, title, summary, severity, created_at, updated_at
		 FROM vehicle_issues WHERE vehicle_id = $1 AND resolved_at IS NULL
		 ORDER BY updated_at DESC`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open issues: %w", err)
	}
	defer rows.Close()
	var out []domain.VehicleIssueRecord
	for rows.Next() {
		var r domain.VehicleIssueRecord
		if err := rows.Scan(&r.VehicleID, &r.IssueKey, &r.Title, &r.Summary, &r.Severity, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: open issues: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: open issues: %w", err)
	}
	return out, nil
}

// UpsertIssue relies on the partial unique index over open records, so a
// resolved issue with the same key is left untouched and a new row opens.
func (s *Store) UpsertIssue(ctx context.Context, r domain.VehicleIssueRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicle_issues (vehicle_id, issue_key, title, summary, severity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (vehicle_id, issue_key) WHERE resolved_at IS NULL DO UPDATE SET
		   title = EXCLUDED.title,
		   summary = EXCLUDED.summary,
		   severity = EXCLUDED.severity,
		   updated_at = EXCLUDED.updated_at`,
		r.VehicleID, r.IssueKey, r.Title, r.Summary, string(r.Severity), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: upsert issue: %w", err)
	}
	return nil
}

// ResolveIssue closes the open record with key. It reports whether one was open.
func (s *Store) ResolveIssue(ctx context.Context, vehicleID, key string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vehicle_issues SET resolved_at = $3, updated_at = $3
		 WHERE vehicle_id = $1 AND issue_key = $2 AND resolved_at IS NULL`, vehicleID, key, at.UTC())
	if err != nil {
		return false, fmt.Errorf("pgstore: resolve issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgstore: resolve issue: %w", err)
	}
	return n > 0, nil
}
