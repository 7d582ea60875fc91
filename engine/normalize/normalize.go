// Package normalize turns raw model output into a schema-valid
// DiagnosticResponse. Extraction is tolerant of prose around the JSON
// object and of missing or mistyped fields.
package normalize

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
)

// Defaults applied to absent or malformed fields.
const (
	DefaultSeverity   = 0.5
	DefaultConfidence = 0.5
)

// Extract returns the substring between the first '{' and the last '}'.
func Extract(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", &domain.ParseError{Reason: "no JSON object in model output", Raw: truncate(text, 200)}
	}
	obj := text[start : end+1]
	if !gjson.Valid(obj) {
		return "", &domain.ParseError{Reason: "malformed JSON object", Raw: truncate(obj, 200)}
	}
	return obj, nil
}

// Normalize parses model output into an enforced DiagnosticResponse.
func Normalize(raw, chatID string) fn.Result[domain.DiagnosticResponse] {
	obj, err := Extract(raw)
	if err != nil {
		return fn.Err[domain.DiagnosticResponse](err)
	}
	doc := gjson.Parse(obj)
	if !doc.IsObject() {
		return fn.Err[domain.DiagnosticResponse](&domain.ParseError{Reason: "top-level value is not an object", Raw: truncate(obj, 200)})
	}

	action, _ := domain.ParseAction(doc.Get("action").String())
	resp := domain.DiagnosticResponse{
		Diagnosis:         stringField(doc, "diagnosis"),
		Explanation:       stringField(doc, "explanation"),
		Severity:          floatField(doc, "severity", DefaultSeverity),
		Confidence:        floatField(doc, "confidence", DefaultConfidence),
		Action:            action,
		Steps:             listField(doc, "steps"),
		FollowUpQuestions: questions(doc),
		YouTubeURLs:       listField(doc, "youtube_urls"),
		ChatID:            chatID,
	}
	return fn.Ok(resp).Map(domain.Enforce)
}

// Fallback is the safe response used whenever the pipeline cannot produce
// one of its own. It never escalates.
func Fallback(chatID string) domain.DiagnosticResponse {
	return domain.Enforce(domain.DiagnosticResponse{
		Explanation: "I couldn't work out a reliable diagnosis from that. A few more details will help me narrow it down.",
		Severity:    DefaultSeverity,
		Confidence:  DefaultConfidence,
		Action:      domain.ActionAsk,
		ChatID:      chatID,
	})
}

func stringField(doc gjson.Result, key string) string {
	v := doc.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// floatField accepts JSON numbers and numeric strings.
func floatField(doc gjson.Result, key string, def float64) float64 {
	v := doc.Get(key)
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// listField keeps the string entries of an array; any other shape yields an empty list.
func listField(doc gjson.Result, key string) []string {
	v := doc.Get(key)
	if !v.IsArray() {
		return []string{}
	}
	out := []string{}
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.Str)
		}
	}
	return out
}

// questions reads follow_up_questions, falling back to the singular
// follow_up_question string older prompts emit.
func questions(doc gjson.Result) []string {
	if doc.Get("follow_up_questions").Exists() {
		return listField(doc, "follow_up_questions")
	}
	if q := stringField(doc, "follow_up_question"); q != "" {
		return []string{q}
	}
	return []string{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
