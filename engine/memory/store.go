// Package memory coordinates the three tiers of diagnosis memory: the
// append-only turn log, the per-chat running summary and the per-vehicle
// issue registry.
package memory

import (
	"context"
	"time"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// Store persists turns, chat summaries and vehicle issues. Implementations
// make UpsertChatSummary and UpsertIssue atomic.
type Store interface {
	AppendTurn(ctx context.Context, turn domain.ConversationTurn) error
	// LoadRecentTurns returns at most limit turns of the chat, oldest first.
	LoadRecentTurns(ctx context.Context, chatID string, limit int) ([]domain.ConversationTurn, error)
	// LoadChatSummary returns nil when the chat has no summary yet.
	LoadChatSummary(ctx context.Context, chatID string) (*domain.ChatIssueSummary, error)
	UpsertChatSummary(ctx context.Context, s domain.ChatIssueSummary) error
	// LoadVehicleSummary returns the most recently updated summary of any
	// chat about the vehicle, or nil.
	LoadVehicleSummary(ctx context.Context, vehicleID string) (*domain.ChatIssueSummary, error)
	// LoadOpenIssues returns unresolved issues, most recently updated first.
	LoadOpenIssues(ctx context.Context, vehicleID string) ([]domain.VehicleIssueRecord, error)
	// UpsertIssue updates the open record with the same (vehicle_id, issue_key)
	// or inserts a new one.
	UpsertIssue(ctx context.Context, rec domain.VehicleIssueRecord) error
	// ListChats returns one overview per chat of the user, newest first.
	ListChats(ctx context.Context, userID string) ([]domain.ChatOverview, error)
	// LoadTranscript returns every turn of the chat owned by userID, oldest first.
	LoadTranscript(ctx context.Context, chatID, userID string) ([]domain.ConversationTurn, error)
}

// Generator produces text from a system and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Publisher emits memory events.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// Index recalls promoted issues by similarity.
type Index interface {
	IndexIssue(ctx context.Context, rec domain.VehicleIssueRecord) error
	SimilarIssues(ctx context.Context, vehicleID, text string, limit int) ([]domain.VehicleIssueRecord, error)
}

// Event subjects.
const (
	SubjectTurnRecorded  = "mechanic.turn.recorded"
	SubjectIssuePromoted = "mechanic.issue.promoted"
)

// TurnRecorded is published for every appended turn.
type TurnRecorded struct {
	TurnID     string        `json:"turn_id"`
	ChatID     string        `json:"chat_id"`
	UserID     string        `json:"user_id"`
	VehicleID  string        `json:"vehicle_id,omitempty"`
	Action     domain.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Diagnosis  string        `json:"diagnosis"`
	At         time.Time     `json:"at"`
}

// IssuePromoted is published when a chat summary is promoted to a vehicle issue.
type IssuePromoted struct {
	ChatID    string               `json:"chat_id"`
	VehicleID string               `json:"vehicle_id"`
	IssueKey  string               `json:"issue_key"`
	Title     string               `json:"title"`
	Severity  domain.SeverityLabel `json:"severity"`
	At        time.Time            `json:"at"`
}
