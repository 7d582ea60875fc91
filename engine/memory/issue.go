package memory

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/engine/normalize"
)

// Issue is the extracted form of a chat summary.
type Issue struct {
	Title    string
	Summary  string
	Severity domain.SeverityLabel
}

// ParseIssue decodes an issue extraction reply. Missing or invalid fields
// are taken from fallback.
func ParseIssue(raw string, fallback Issue) (Issue, error) {
	obj, err := normalize.Extract(raw)
	if err != nil {
		return fallback, err
	}
	out := fallback
	if t := strings.TrimSpace(gjson.Get(obj, "title").String()); t != "" {
		out.Title = t
	}
	if s := strings.TrimSpace(gjson.Get(obj, "summary").String()); s != "" {
		out.Summary = s
	}
	if sev, ok := domain.ParseSeverityLabel(gjson.Get(obj, "severity").String()); ok {
		out.Severity = sev
	}
	return out, nil
}

// FallbackIssue derives an issue from the turn when extraction is unavailable.
func FallbackIssue(summary string, r domain.DiagnosticResponse) Issue {
	title := strings.TrimSpace(r.Diagnosis)
	if title == "" {
		title = domain.GenericDiagnosis
	}
	return Issue{Title: title, Summary: summary, Severity: domain.SeverityFromScore(r.Severity)}
}
