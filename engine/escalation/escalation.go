// Package escalation implements the action lifecycle of a diagnosis chat:
// ASK → DIY | ESCALATE → CONFIRM_WORKSHOP → WORKSHOP_RESULTS.
package escalation

import (
	"strings"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

const (
	// DIYConfidenceFloor is the blended confidence a DIY answer needs.
	DIYConfidenceFloor = 0.7
	// StreakThreshold is the number of preceding ESCALATE turns that forces CONFIRM_WORKSHOP.
	StreakThreshold = 2
	// StreakScanLimit caps how far back the escalation streak is counted.
	StreakScanLimit = 5
)

// LowConfidenceCaveat is appended when a DIY proposal is escalated.
const LowConfidenceCaveat = "I'm not confident enough in this diagnosis to recommend fixing it yourself, so a professional inspection is the safer next step."

// WorkshopResultsNote explains a WORKSHOP_RESULTS response.
const WorkshopResultsNote = "Here are repair workshops near you."

// WorkshopKeywords trigger a workshop lookup when present in the user's message.
var WorkshopKeywords = []string{"workshop", "garage", "service center", "mechanic", "repair shop"}

// Rule names reported in Transition. RuleWorkshopUnavailable is reported
// by the engine when a model-proposed WORKSHOP_RESULTS has no lookup
// collaborator to serve it.
const (
	RuleWorkshopIntent      = "workshop_intent"
	RuleEscalationStreak    = "escalation_streak"
	RuleDIYWithoutSteps     = "diy_without_steps"
	RuleDIYLowConfidence    = "diy_low_confidence"
	RuleWorkshopUnavailable = "workshop_unavailable"
)

// Transition records an action change made by the state machine.
type Transition struct {
	From domain.Action
	To   domain.Action
	Rule string
}

// WorkshopIntent reports whether text asks for a workshop.
func WorkshopIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range WorkshopKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ConsecutiveEscalations counts ESCALATE turns at the end of history,
// newest first, stopping at the first other action or after StreakScanLimit
// turns. history is ordered oldest first.
func ConsecutiveEscalations(history []domain.ConversationTurn) int {
	n := 0
	for i := len(history) - 1; i >= 0 && n < StreakScanLimit; i-- {
		if history[i].Response.Action != domain.ActionEscalate {
			break
		}
		n++
	}
	return n
}

// ShortCircuit builds the WORKSHOP_RESULTS response for a message that asks
// for a workshop. It returns false when the message carries no such intent.
// The caller fills WorkshopURLs from the lookup collaborator.
func ShortCircuit(text, chatID string, history []domain.ConversationTurn) (domain.DiagnosticResponse, bool) {
	if !WorkshopIntent(text) {
		return domain.DiagnosticResponse{}, false
	}
	r := domain.DiagnosticResponse{
		Action:      domain.ActionWorkshopResults,
		Severity:    0.5,
		Confidence:  0.5,
		Explanation: WorkshopResultsNote,
		ChatID:      chatID,
	}
	if n := len(history); n > 0 {
		last := history[n-1].Response
		r.Diagnosis = last.Diagnosis
		r.Severity = last.Severity
		r.Confidence = last.Confidence
	}
	return r, true
}

type state struct {
	resp   domain.DiagnosticResponse
	streak int
}

// rule is one (predicate, effect) pair of the transition table.
type rule struct {
	name string
	when func(s *state) bool
	then func(s *state)
}

var escalationStreak = rule{
	name: RuleEscalationStreak,
	when: func(s *state) bool {
		return s.resp.Action == domain.ActionEscalate && s.streak >= StreakThreshold
	},
	then: func(s *state) {
		s.resp.Action = domain.ActionConfirmWorkshop
		s.resp.FollowUpQuestions = []string{domain.ConsentPrompt}
	},
}

// transitions is evaluated in order; every matching rule fires. The streak
// rule is checked once more afterwards so that an ESCALATE produced by the
// low-confidence rule still progresses.
var transitions = []rule{
	escalationStreak,
	{
		// Normalized proposals already arrive as ASK through domain.Enforce;
		// both paths ask the same generic questions.
		name: RuleDIYWithoutSteps,
		when: func(s *state) bool {
			return s.resp.Action == domain.ActionDIY && len(s.resp.Steps) == 0
		},
		then: func(s *state) {
			s.resp.Action = domain.ActionAsk
			s.resp.FollowUpQuestions = domain.FallbackQuestions()
			s.resp.YouTubeURLs = nil
		},
	},
	{
		name: RuleDIYLowConfidence,
		when: func(s *state) bool {
			return s.resp.Action == domain.ActionDIY && s.resp.Confidence < DIYConfidenceFloor
		},
		then: func(s *state) {
			s.resp.Action = domain.ActionEscalate
			s.resp.Steps = nil
			s.resp.YouTubeURLs = nil
			s.resp.Explanation = strings.TrimSpace(s.resp.Explanation + " " + LowConfidenceCaveat)
		},
	},
	escalationStreak,
}

// Decide applies the transition rules to a proposal whose confidence has
// already been blended. history holds the chat's prior turns, oldest first.
func Decide(proposal domain.DiagnosticResponse, history []domain.ConversationTurn) (domain.DiagnosticResponse, []Transition) {
	s := &state{resp: proposal, streak: ConsecutiveEscalations(history)}
	var fired []Transition
	for _, r := range transitions {
		if !r.when(s) {
			continue
		}
		from := s.resp.Action
		r.then(s)
		fired = append(fired, Transition{From: from, To: s.resp.Action, Rule: r.name})
	}
	return domain.Enforce(s.resp), fired
}
