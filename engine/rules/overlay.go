// Package rules applies deterministic overrides to a model's proposed
// response: a trouble-code lookup table and an ordered table of symptom
// keyword guards.
package rules

import (
	"strings"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// EscalateFloor is the minimum confidence of a code-forced escalation.
const EscalateFloor = 0.8

// Outcome describes which rule, if any, changed the response.
type Outcome struct {
	Rule string
	// Code is the trouble code found in the message, known or not.
	Code string
	// KnownCode reports whether Code was found in the table.
	KnownCode bool
	// Floor is the blended confidence the matched rule still guarantees.
	// Only a code-forced escalation sets it; symptom guards raise the
	// proposal before blending and leave it zero.
	Floor float64
}

// Fired reports whether a rule changed the response.
func (o Outcome) Fired() bool { return o.Rule != "" }

// UnknownCode returns the trouble code when one was present but not in the table.
func (o Outcome) UnknownCode() string {
	if o.Code != "" && !o.KnownCode {
		return o.Code
	}
	return ""
}

// rule is one (predicate, effect) pair. match inspects the user text and,
// when it applies, returns the effect to run on the response.
type rule struct {
	name  string
	match func(text string) (effect, bool)
}

type effect func(r domain.DiagnosticResponse) (domain.DiagnosticResponse, float64)

// Overlay holds the ordered rule list.
type Overlay struct {
	codes  map[string]CodeInfo
	rules  []rule
	guards []rule
}

// New builds an Overlay from a code table and an ordered guard list.
// Nil arguments select the defaults.
func New(codes map[string]CodeInfo, guards []SymptomGuard) *Overlay {
	if codes == nil {
		codes = DefaultCodes
	}
	if guards == nil {
		guards = DefaultGuards
	}
	o := &Overlay{codes: codes}
	for _, g := range guards {
		o.guards = append(o.guards, rule{name: "symptom:" + g.Name, match: guardMatcher(g)})
	}
	o.rules = append([]rule{{name: "code_lookup", match: o.matchCode}}, o.guards...)
	return o
}

// Lookup returns the table entry for code.
func (o *Overlay) Lookup(code string) (CodeInfo, bool) {
	info, ok := o.codes[strings.ToUpper(code)]
	return info, ok
}

// Apply runs the rules against the user's message. The first rule that
// matches is applied and evaluation stops, so a known trouble code always
// takes precedence over symptom keywords.
func (o *Overlay) Apply(userText string, r domain.DiagnosticResponse) (domain.DiagnosticResponse, Outcome) {
	return o.apply(o.rules, userText, r)
}

// ApplyGuards runs only the symptom guards. It is used on the fallback
// response, which must never be turned into an escalation.
func (o *Overlay) ApplyGuards(userText string, r domain.DiagnosticResponse) (domain.DiagnosticResponse, Outcome) {
	return o.apply(o.guards, userText, r)
}

func (o *Overlay) apply(rules []rule, userText string, r domain.DiagnosticResponse) (domain.DiagnosticResponse, Outcome) {
	out := Outcome{Code: FindCode(userText)}
	if out.Code != "" {
		_, out.KnownCode = o.codes[out.Code]
	}
	lower := strings.ToLower(userText)
	for _, rl := range rules {
		eff, ok := rl.match(lower)
		if !ok {
			continue
		}
		r, out.Floor = eff(r)
		out.Rule = rl.name
		break
	}
	return domain.Enforce(r), out
}

func (o *Overlay) matchCode(text string) (effect, bool) {
	code := FindCode(text)
	info, ok := o.codes[code]
	if !ok {
		return nil, false
	}
	return func(r domain.DiagnosticResponse) (domain.DiagnosticResponse, float64) {
		r.Diagnosis = code + ": " + info.Meaning
		r.Explanation = info.Description
		switch {
		case !info.DIYPossible:
			r.Action = domain.ActionEscalate
			r.Confidence = max(r.Confidence, EscalateFloor)
			r.Steps = nil
			r.YouTubeURLs = nil
			return r, EscalateFloor
		case info.MultiCause:
			r.Action = domain.ActionAsk
			if len(info.Questions) > 0 {
				r.FollowUpQuestions = append([]string(nil), info.Questions...)
			}
		}
		return r, 0
	}, true
}

func guardMatcher(g SymptomGuard) func(string) (effect, bool) {
	return func(text string) (effect, bool) {
		for _, kw := range g.Keywords {
			if strings.Contains(text, kw) {
				return func(r domain.DiagnosticResponse) (domain.DiagnosticResponse, float64) {
					r.Diagnosis = g.Diagnosis
					r.Explanation = g.Explanation
					r.FollowUpQuestions = append([]string(nil), g.Questions...)
					r.Action = domain.ActionAsk
					r.Confidence = max(r.Confidence, g.Floor)
					return r, 0
				}, true
			}
		}
		return nil, false
	}
}
