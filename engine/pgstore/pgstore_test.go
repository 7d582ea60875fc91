package pgstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/engine/memory"
)

var _ memory.Store = (*Store)(nil)

// newTestStore connects to CI_DATABASE_URL when set, otherwise starts a
// PostgreSQL testcontainer.
func newTestStore(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})
		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	s, err := Open(ctx, Config{DSN: connStr, MaxOpenConns: 10, MaxIdleConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.DB().Exec(`TRUNCATE conversation_turns, chat_issue_summaries, vehicle_issues`)
		_ = s.Close()
	})
	return s
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func turn(chat, user string, i int) domain.ConversationTurn {
	return domain.ConversationTurn{
		ID:        fmt.Sprintf("%s-%02d", chat, i),
		ChatID:    chat,
		UserID:    user,
		VehicleID: "v1",
		Prompt:    fmt.Sprintf("message %d", i),
		Response: domain.DiagnosticResponse{
			Action:            domain.ActionAsk,
			Diagnosis:         fmt.Sprintf("d%d", i),
			FollowUpQuestions: []string{"When?"},
			Confidence:        0.5,
			Severity:          0.5,
			ChatID:            chat,
		},
		CreatedAt: t0.Add(time.Duration(i) * time.Minute),
	}
}

func TestPostgresStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, Migrate(s.DB()))
	})

	t.Run("turns", func(t *testing.T) {
		for i := 0; i < 7; i++ {
			require.NoError(t, s.AppendTurn(ctx, turn("c1", "u1", i)))
		}
		require.NoError(t, s.AppendTurn(ctx, turn("c2", "u1", 20)))

		recent, err := s.LoadRecentTurns(ctx, "c1", 5)
		require.NoError(t, err)
		require.Len(t, recent, 5)
		assert.Equal(t, "c1-02", recent[0].ID)
		assert.Equal(t, "c1-06", recent[4].ID)
		assert.Equal(t, []string{"When?"}, recent[4].Response.FollowUpQuestions)
		assert.Equal(t, "v1", recent[4].VehicleID)

		tr, err := s.LoadTranscript(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Len(t, tr, 7)
		tr, err = s.LoadTranscript(ctx, "c1", "someone-else")
		require.NoError(t, err)
		assert.Empty(t, tr)

		chats, err := s.ListChats(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, "c2", chats[0].ChatID)
		assert.Equal(t, 7, chats[1].TurnCount)
		assert.Equal(t, "message 6", chats[1].Title)
	})

	t.Run("summaries", func(t *testing.T) {
		cs, err := s.LoadChatSummary(ctx, "none")
		require.NoError(t, err)
		assert.Nil(t, cs)

		require.NoError(t, s.UpsertChatSummary(ctx, domain.ChatIssueSummary{ChatID: "c1", VehicleID: "v1", Summary: "first", Severity: domain.SeverityLow, UpdatedAt: t0}))
		require.NoError(t, s.UpsertChatSummary(ctx, domain.ChatIssueSummary{ChatID: "c1", Summary: "second", Severity: domain.SeverityHigh, UpdatedAt: t0.Add(time.Minute)}))

		cs, err = s.LoadChatSummary(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, cs)
		assert.Equal(t, "second", cs.Summary)
		assert.Equal(t, domain.SeverityHigh, cs.Severity)
		assert.Equal(t, "v1", cs.VehicleID, "an upsert without vehicle keeps the known one")

		vs, err := s.LoadVehicleSummary(ctx, "v1")
		require.NoError(t, err)
		require.NotNil(t, vs)
		assert.Equal(t, "c1", vs.ChatID)
	})

	t.Run("issues", func(t *testing.T) {
		rec := domain.VehicleIssueRecord{
			VehicleID: "v1", IssueKey: "worn_clutch", Title: "Worn clutch", Summary: "first",
			Severity: domain.SeverityMedium, CreatedAt: t0, UpdatedAt: t0,
		}
		require.NoError(t, s.UpsertIssue(ctx, rec))
		rec.Summary, rec.UpdatedAt = "second", t0.Add(time.Hour)
		require.NoError(t, s.UpsertIssue(ctx, rec))

		open, err := s.LoadOpenIssues(ctx, "v1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "second", open[0].Summary)
		assert.True(t, open[0].CreatedAt.Equal(t0))

		ok, err := s.ResolveIssue(ctx, "v1", "worn_clutch", t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)
		open, _ = s.LoadOpenIssues(ctx, "v1")
		assert.Empty(t, open)

		require.NoError(t, s.UpsertIssue(ctx, rec))
		var total int
		require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM vehicle_issues WHERE vehicle_id = 'v1'`).Scan(&total))
		assert.Equal(t, 2, total)
	})
}

func TestOpenRejectsBadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, Config{DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"})
	require.Error(t, err)
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "v1", nullable("v1"))
}
