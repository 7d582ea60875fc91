// Package domain defines the diagnostic response model, conversation memory
// records, and the invariants every response must satisfy before it leaves
// the engine.
package domain

import (
	"strings"
	"time"
)

// Action is the recommendation the agent gives for a turn.
type Action string

const (
	ActionAsk             Action = "ASK"
	ActionDIY             Action = "DIY"
	ActionEscalate        Action = "ESCALATE"
	ActionConfirmWorkshop Action = "CONFIRM_WORKSHOP"
	ActionWorkshopResults Action = "WORKSHOP_RESULTS"
)

// ValidActions is the set of recognised actions.
var ValidActions = map[Action]bool{
	ActionAsk: true, ActionDIY: true, ActionEscalate: true,
	ActionConfirmWorkshop: true, ActionWorkshopResults: true,
}

// ParseAction matches s against the known actions ignoring case and
// surrounding whitespace.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if ValidActions[a] {
		return a, true
	}
	return ActionAsk, false
}

// DiagnosticResponse is the structured judgment returned for every turn.
type DiagnosticResponse struct {
	Diagnosis         string   `json:"diagnosis"`
	Explanation       string   `json:"explanation"`
	Severity          float64  `json:"severity"`
	Confidence        float64  `json:"confidence"`
	Action            Action   `json:"action"`
	Steps             []string `json:"steps"`
	FollowUpQuestions []string `json:"follow_up_questions"`
	YouTubeURLs       []string `json:"youtube_urls"`
	WorkshopURLs      []string `json:"workshop_urls,omitempty"`
	ChatID            string   `json:"chat_id"`
}

// Terminal reports whether the conversation has reached an end state for
// this issue.
func (r DiagnosticResponse) Terminal() bool {
	switch r.Action {
	case ActionWorkshopResults:
		return true
	case ActionDIY:
		return len(r.Steps) > 0
	}
	return false
}

// ConversationTurn is one user message and the agent's final response.
// Turns are append-only and ordered by CreatedAt.
type ConversationTurn struct {
	ID        string             `json:"id"`
	ChatID    string             `json:"chat_id"`
	UserID    string             `json:"user_id"`
	VehicleID string             `json:"vehicle_id,omitempty"`
	Prompt    string             `json:"prompt"`
	Response  DiagnosticResponse `json:"response"`
	CreatedAt time.Time          `json:"created_at"`
}

// SeverityLabel is the coarse severity attached to summaries and issues.
type SeverityLabel string

const (
	SeverityLow    SeverityLabel = "LOW"
	SeverityMedium SeverityLabel = "MEDIUM"
	SeverityHigh   SeverityLabel = "HIGH"
)

// ParseSeverityLabel accepts LOW, MEDIUM or HIGH in any case.
func ParseSeverityLabel(s string) (SeverityLabel, bool) {
	switch l := SeverityLabel(strings.ToUpper(strings.TrimSpace(s))); l {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return l, true
	}
	return "", false
}

// SeverityFromScore maps a numeric severity in [0,1] onto a label.
func SeverityFromScore(score float64) SeverityLabel {
	switch {
	case score >= 0.7:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ChatIssueSummary is the rolling summary of a single chat.
type ChatIssueSummary struct {
	ChatID    string        `json:"chat_id"`
	VehicleID string        `json:"vehicle_id,omitempty"`
	Summary   string        `json:"summary"`
	Severity  SeverityLabel `json:"severity"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// VehicleIssueRecord is a durable issue attached to a vehicle. A record is
// open while ResolvedAt is nil.
type VehicleIssueRecord struct {
	VehicleID  string        `json:"vehicle_id"`
	IssueKey   string        `json:"issue_key"`
	Title      string        `json:"title"`
	Summary    string        `json:"summary"`
	Severity   SeverityLabel `json:"severity"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Open reports whether the issue is unresolved.
func (r VehicleIssueRecord) Open() bool { return r.ResolvedAt == nil }

// ChatOverview is the history card shown for a chat.
type ChatOverview struct {
	ChatID        string    `json:"chat_id"`
	Title         string    `json:"title"`
	Preview       string    `json:"preview"`
	LastAction    Action    `json:"last_action"`
	LastDiagnosis string    `json:"last_diagnosis"`
	TurnCount     int       `json:"turn_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Overview card lengths, in runes.
const (
	OverviewTitleLen   = 60
	OverviewPreviewLen = 120
)

// NewChatOverview builds the card for a chat from its latest turn. count is
// the chat's total number of turns.
func NewChatOverview(latest ConversationTurn, count int) ChatOverview {
	return ChatOverview{
		ChatID:        latest.ChatID,
		Title:         truncate(latest.Prompt, OverviewTitleLen),
		Preview:       truncate(latest.Prompt, OverviewPreviewLen),
		LastAction:    latest.Response.Action,
		LastDiagnosis: latest.Response.Diagnosis,
		TurnCount:     count,
		UpdatedAt:     latest.CreatedAt,
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SearchHit is a single web search result.
type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
