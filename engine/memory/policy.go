package memory

import (
	"strings"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// Policy decides when summaries are written and promoted.
type Policy struct {
	// MinSummaryLen is the shortest summary that can become an issue.
	MinSummaryLen int
	// PromoteDIY adds DIY to the actions eligible for promotion.
	PromoteDIY bool
	// RecentLimit is how many prior turns feed the prompt.
	RecentLimit int
	// SimilarLimit caps recalled similar issues.
	SimilarLimit      int
	SummaryConfidence float64
	PromoteConfidence float64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinSummaryLen:     40,
		RecentLimit:       5,
		SimilarLimit:      3,
		SummaryConfidence: 0.6,
		PromoteConfidence: 0.7,
	}
}

// ShouldSummarize reports whether the chat summary is regenerated after r.
func (p Policy) ShouldSummarize(r domain.DiagnosticResponse) bool {
	if r.Confidence >= p.SummaryConfidence {
		return true
	}
	switch r.Action {
	case domain.ActionDIY, domain.ActionEscalate, domain.ActionConfirmWorkshop:
		return true
	}
	return false
}

// ShouldPromote reports whether summary becomes a vehicle issue record.
func (p Policy) ShouldPromote(summary string, r domain.DiagnosticResponse, vehicleID string) bool {
	if strings.TrimSpace(vehicleID) == "" || len(strings.TrimSpace(summary)) < p.MinSummaryLen {
		return false
	}
	if r.Confidence < p.PromoteConfidence {
		return false
	}
	switch r.Action {
	case domain.ActionEscalate, domain.ActionConfirmWorkshop:
		return true
	case domain.ActionDIY:
		return p.PromoteDIY
	}
	return false
}
