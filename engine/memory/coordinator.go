package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/engine/prompt"
	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
)

// Options configures a Coordinator. Publisher and Index are optional.
type Options struct {
	Generator Generator
	Publisher Publisher
	Index     Index
	Policy    Policy
	Logger    *slog.Logger
	Now       func() time.Time
}

// Coordinator reads memory context before a turn and applies the write
// policy after it.
type Coordinator struct {
	store  Store
	gen    Generator
	pub    Publisher
	index  Index
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Coordinator over store. A zero Policy selects DefaultPolicy.
func New(store Store, opts Options) *Coordinator {
	c := &Coordinator{
		store:  store,
		gen:    opts.Generator,
		pub:    opts.Publisher,
		index:  opts.Index,
		policy: opts.Policy,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if c.policy == (Policy{}) {
		c.policy = DefaultPolicy()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Policy returns the active write policy.
func (c *Coordinator) Policy() Policy { return c.policy }

// Store returns the backing store.
func (c *Coordinator) Store() Store { return c.store }

// Context is the memory loaded for one turn.
type Context struct {
	Recent         []domain.ConversationTurn
	ChatSummary    *domain.ChatIssueSummary
	VehicleSummary *domain.ChatIssueSummary
	OpenIssues     []domain.VehicleIssueRecord
	Similar        []domain.VehicleIssueRecord
	// Degraded is set when a read failed and the context is partial.
	Degraded bool
}

// PromptInput converts the context into prompt input for userText.
func (m Context) PromptInput(userText string) prompt.Input {
	in := prompt.Input{
		UserText:   userText,
		Recent:     m.Recent,
		OpenIssues: m.OpenIssues,
		Similar:    m.Similar,
	}
	if m.ChatSummary != nil {
		in.ChatSummary = m.ChatSummary.Summary
	}
	if m.VehicleSummary != nil && (m.ChatSummary == nil || m.VehicleSummary.ChatID != m.ChatSummary.ChatID) {
		in.VehicleSummary = m.VehicleSummary.Summary
	}
	return in
}

// Load reads every memory tier concurrently. Read failures are logged and
// leave the affected tier empty.
func (c *Coordinator) Load(ctx context.Context, chatID, vehicleID, userText string) Context {
	var m Context
	reads := []func() error{
		func() (err error) {
			m.Recent, err = c.store.LoadRecentTurns(ctx, chatID, c.policy.RecentLimit)
			return wrap("recent turns", err)
		},
		func() (err error) {
			m.ChatSummary, err = c.store.LoadChatSummary(ctx, chatID)
			return wrap("chat summary", err)
		},
	}
	if vehicleID != "" {
		reads = append(reads,
			func() (err error) {
				m.VehicleSummary, err = c.store.LoadVehicleSummary(ctx, vehicleID)
				return wrap("vehicle summary", err)
			},
			func() (err error) {
				m.OpenIssues, err = c.store.LoadOpenIssues(ctx, vehicleID)
				return wrap("open issues", err)
			},
		)
		if c.index != nil {
			reads = append(reads, func() (err error) {
				m.Similar, err = c.index.SimilarIssues(ctx, vehicleID, userText, c.policy.SimilarLimit)
				return wrap("similar issues", err)
			})
		}
	}
	if err := errors.Join(fn.FanOut(reads...)...); err != nil {
		c.logger.Warn("memory: partial context", "chat_id", chatID, "err", err)
		m.Degraded = true
	}
	return m
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("memory: load %s: %w", what, err)
	}
	return nil
}

// Outcome reports what Record wrote.
type Outcome struct {
	Turn           domain.ConversationTurn
	SummaryUpdated bool
	Summary        string
	Promoted       *domain.VehicleIssueRecord
}

// Record appends turn and applies the summary and promotion policy. prev is
// the chat summary loaded before the turn. The returned error reports
// storage failures; generator, publish and index failures are only logged.
func (c *Coordinator) Record(ctx context.Context, turn domain.ConversationTurn, prev *domain.ChatIssueSummary) (Outcome, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = c.now().UTC()
	}
	out := Outcome{Turn: turn}
	if err := c.store.AppendTurn(ctx, turn); err != nil {
		return out, fmt.Errorf("memory: append turn: %w", err)
	}
	r := turn.Response
	c.publish(ctx, SubjectTurnRecorded, TurnRecorded{
		TurnID: turn.ID, ChatID: turn.ChatID, UserID: turn.UserID, VehicleID: turn.VehicleID,
		Action: r.Action, Confidence: r.Confidence, Diagnosis: r.Diagnosis, At: turn.CreatedAt,
	})

	if !c.policy.ShouldSummarize(r) || c.gen == nil {
		return out, nil
	}
	var prevText string
	if prev != nil {
		prevText = prev.Summary
	}
	summary, err := c.gen.Generate(ctx, prompt.SummarySystem, prompt.Summary(prevText, turn))
	summary = strings.TrimSpace(summary)
	if err == nil && summary == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		c.logger.Warn("memory: summary generation failed", "chat_id", turn.ChatID, "err", err)
		return out, nil
	}
	cs := domain.ChatIssueSummary{
		ChatID:    turn.ChatID,
		VehicleID: turn.VehicleID,
		Summary:   summary,
		Severity:  domain.SeverityFromScore(r.Severity),
		UpdatedAt: turn.CreatedAt,
	}
	if err := c.store.UpsertChatSummary(ctx, cs); err != nil {
		return out, fmt.Errorf("memory: upsert chat summary: %w", err)
	}
	out.SummaryUpdated, out.Summary = true, summary

	if !c.policy.ShouldPromote(summary, r, turn.VehicleID) {
		return out, nil
	}
	rec := c.issueRecord(ctx, turn, summary)
	if err := c.store.UpsertIssue(ctx, rec); err != nil {
		return out, fmt.Errorf("memory: upsert issue: %w", err)
	}
	out.Promoted = &rec
	c.publish(ctx, SubjectIssuePromoted, IssuePromoted{
		ChatID: turn.ChatID, VehicleID: rec.VehicleID, IssueKey: rec.IssueKey,
		Title: rec.Title, Severity: rec.Severity, At: rec.UpdatedAt,
	})
	if c.index != nil {
		if err := c.index.IndexIssue(ctx, rec); err != nil {
			c.logger.Warn("memory: index issue failed", "issue_key", rec.IssueKey, "err", err)
		}
	}
	return out, nil
}

func (c *Coordinator) issueRecord(ctx context.Context, turn domain.ConversationTurn, summary string) domain.VehicleIssueRecord {
	iss := FallbackIssue(summary, turn.Response)
	raw, err := c.gen.Generate(ctx, prompt.IssueSystem, summary)
	if err == nil {
		iss, err = ParseIssue(raw, iss)
	}
	if err != nil {
		c.logger.Warn("memory: issue extraction failed, using diagnosis", "chat_id", turn.ChatID, "err", err)
	}
	return domain.VehicleIssueRecord{
		VehicleID: turn.VehicleID,
		IssueKey:  domain.IssueKey(iss.Title),
		Title:     iss.Title,
		Summary:   iss.Summary,
		Severity:  iss.Severity,
		CreatedAt: turn.CreatedAt,
		UpdatedAt: turn.CreatedAt,
	}
}

func (c *Coordinator) publish(ctx context.Context, subject string, event any) {
	if c.pub == nil {
		return
	}
	if err := c.pub.Publish(ctx, subject, event); err != nil {
		c.logger.Warn("memory: publish failed", "subject", subject, "err", err)
	}
}
