// Package confidence smooths per-turn model confidence across a chat.
package confidence

import "github.com/WessleyAI/wessley-mechanic/engine/domain"

// Blend weights. They sum to 1, so a blend of two values in [0,1] stays in [0,1].
const (
	PreviousWeight = 0.6
	CurrentWeight  = 0.4
)

// Blend combines the current turn's confidence with the previous turn's.
// Without a previous value the current one is only rounded.
func Blend(prev *float64, cur float64) float64 {
	cur = domain.Clamp01(cur)
	if prev == nil {
		return domain.Round2(cur)
	}
	return domain.Round2(PreviousWeight*domain.Clamp01(*prev) + CurrentWeight*cur)
}

// Previous returns the confidence of the most recent turn, or nil when the
// chat has no turns. turns is ordered oldest first.
func Previous(turns []domain.ConversationTurn) *float64 {
	if len(turns) == 0 {
		return nil
	}
	c := turns[len(turns)-1].Response.Confidence
	return &c
}

// Apply blends r's confidence with the previous turn. floor is non-zero
// only for a code-forced escalation, whose minimum survives blending.
func Apply(turns []domain.ConversationTurn, r domain.DiagnosticResponse, floor float64) domain.DiagnosticResponse {
	r.Confidence = max(Blend(Previous(turns), r.Confidence), floor)
	return r
}
