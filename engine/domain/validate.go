package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength bounds a single user message in runes.
const MaxMessageLength = 4000

// GenericDiagnosis fills an empty diagnosis on actions that must carry one.
const GenericDiagnosis = "Unconfirmed vehicle issue"

// ConsentPrompt is the single question attached to CONFIRM_WORKSHOP.
const ConsentPrompt = "This looks like a job for a professional. Would you like me to find repair workshops near you? Reply 'find a workshop' to continue."

// fallbackQuestions are asked whenever an ASK response has none of its own.
var fallbackQuestions = []string{
	"Can you describe the symptom in more detail (sounds, smells, warning lights)?",
	"When did it start, and does it happen all the time or only in certain conditions?",
	"What is the make, model, year and approximate mileage of the vehicle?",
}

// FallbackQuestions returns a fresh copy of the generic clarifying questions.
func FallbackQuestions() []string {
	return append([]string(nil), fallbackQuestions...)
}

// Injection patterns: template expansions and document-store operators. SQL
// keywords are allowed since plain questions use them ("delete the codes
// from the ECU") and every store binds parameters.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

var issueKeySeparators = regexp.MustCompile(`[\s\-]+`)

// IssueKey derives the stable key of an issue title: lower-cased, trimmed,
// with runs of whitespace or hyphens collapsed into one underscore.
func IssueKey(title string) string {
	return issueKeySeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "_")
}

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Enforce rewrites r so that it satisfies every response invariant. It is
// idempotent and is applied to every response before it leaves the engine.
func Enforce(r DiagnosticResponse) DiagnosticResponse {
	r.Severity = Clamp01(r.Severity)
	r.Confidence = Clamp01(r.Confidence)
	if !ValidActions[r.Action] {
		r.Action = ActionAsk
	}

	r.Steps = compact(r.Steps)
	r.FollowUpQuestions = compact(r.FollowUpQuestions)
	r.YouTubeURLs = compact(r.YouTubeURLs)
	r.WorkshopURLs = compact(r.WorkshopURLs)

	if r.Action == ActionDIY && len(r.Steps) == 0 {
		r.Action = ActionAsk
	}
	if r.Action != ActionDIY {
		r.Steps = []string{}
		r.YouTubeURLs = []string{}
	}

	switch r.Action {
	case ActionAsk:
		if len(r.FollowUpQuestions) == 0 {
			r.FollowUpQuestions = FallbackQuestions()
		}
	case ActionConfirmWorkshop:
		r.FollowUpQuestions = []string{ConsentPrompt}
	default:
		r.FollowUpQuestions = []string{}
	}

	if r.Action != ActionWorkshopResults {
		r.WorkshopURLs = nil
	}

	if strings.TrimSpace(r.Diagnosis) == "" {
		switch r.Action {
		case ActionDIY, ActionEscalate, ActionConfirmWorkshop:
			r.Diagnosis = GenericDiagnosis
		}
	}
	return r
}

// Validate checks r against the response invariants without modifying it.
func Validate(r DiagnosticResponse) error {
	switch {
	case !ValidActions[r.Action]:
		return NewValidationError("action", string(r.Action), ErrInvariant)
	case r.Severity < 0 || r.Severity > 1 || math.IsNaN(r.Severity):
		return NewValidationError("severity", fmt.Sprint(r.Severity), ErrInvariant)
	case r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence):
		return NewValidationError("confidence", fmt.Sprint(r.Confidence), ErrInvariant)
	case r.Action == ActionDIY && len(r.Steps) == 0:
		return NewValidationError("steps", "", ErrInvariant)
	case r.Action != ActionDIY && len(r.Steps) > 0:
		return NewValidationError("steps", strings.Join(r.Steps, "|"), ErrInvariant)
	case r.Action != ActionDIY && len(r.YouTubeURLs) > 0:
		return NewValidationError("youtube_urls", strings.Join(r.YouTubeURLs, "|"), ErrInvariant)
	case r.Action == ActionConfirmWorkshop && len(r.FollowUpQuestions) != 1:
		return NewValidationError("follow_up_questions", fmt.Sprint(len(r.FollowUpQuestions)), ErrInvariant)
	case r.Action != ActionAsk && r.Action != ActionConfirmWorkshop && len(r.FollowUpQuestions) > 0:
		return NewValidationError("follow_up_questions", strings.Join(r.FollowUpQuestions, "|"), ErrInvariant)
	case r.Action != ActionWorkshopResults && len(r.WorkshopURLs) > 0:
		return NewValidationError("workshop_urls", strings.Join(r.WorkshopURLs, "|"), ErrInvariant)
	}
	switch r.Action {
	case ActionDIY, ActionEscalate, ActionConfirmWorkshop:
		if strings.TrimSpace(r.Diagnosis) == "" {
			return NewValidationError("diagnosis", "", ErrInvariant)
		}
	}
	return nil
}

// ValidateMessage checks a raw user message before it enters the pipeline.
func ValidateMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewValidationError("message", text, ErrEmptyMessage)
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return NewValidationError("message", fmt.Sprintf("%d runes", n), ErrMessageTooLong)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("message", text, ErrMessageInjection)
		}
	}
	return nil
}

// ValidateCoordinates checks a latitude/longitude pair.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewValidationError("latitude", fmt.Sprint(lat), ErrInvalidCoordinates)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return NewValidationError("longitude", fmt.Sprint(lng), ErrInvalidCoordinates)
	}
	return nil
}

// compact trims entries and drops blanks. It never returns nil.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
