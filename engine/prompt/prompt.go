// Package prompt builds the model prompts for a diagnosis turn and for the
// secondary summary and issue-extraction calls.
package prompt

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/vehiclenlp"
)

// System is the diagnostic system prompt.
const System = `You are a vehicle diagnostic assistant helping everyday drivers.
Speak like an experienced, friendly mechanic: calm, practical, plain language.
Never invent facts or claim certainty without evidence.

Decide primarily on whether a non-professional can fix the issue, not on how serious it sounds.
If you asked follow-up questions last turn, treat the user's message as the answer and keep
narrowing the same issue unless they clearly raise a new one.

Actions:
- DIY: the cause is identified and a normal driver can fix it safely with basic tools. Give steps.
- ASK: the cause or its fixability is unclear. Ask simple questions the driver can observe.
- ESCALATE: the repair needs professional tools, calibration, or carries high risk.
- CONFIRM_WORKSHOP: professional help is likely; ask whether they want workshop details.

Severity is repair difficulty, not danger: 0.0-0.3 easy DIY, 0.4-0.6 DIY with guidance,
0.7-1.0 professional repair.

Respond with JSON only, no markdown:
{"diagnosis": string, "explanation": string, "severity": number, "action": "ASK|DIY|ESCALATE|CONFIRM_WORKSHOP",
 "steps": [string], "follow_up_questions": [string], "youtube_urls": [string], "confidence": number}`

// SummarySystem instructs the running chat summary update.
const SummarySystem = `You maintain a running summary of a vehicle diagnosis conversation.
Update the existing summary with the new turn. Track reported symptoms, when they happen,
what is confirmed, what is ruled out, the driver's DIY skill and open questions.
Keep confirmed facts, drop what was ruled out, do not repeat the conversation.
Reply with the summary text only.`

// IssueSystem instructs issue extraction from a chat summary.
const IssueSystem = `You are a vehicle diagnostician. From the conversation summary extract at most one
vehicle issue; if it is not yet clear, extract the suspected issue with a tentative title such as
"Possible exhaust leak". Do not invent faults the summary does not support.
Severity is fixability by a non-professional: LOW safe to monitor or DIY, MEDIUM needs skill or tools,
HIGH unsafe or workshop required.
Respond with JSON only: {"title": string, "summary": string, "severity": "LOW|MEDIUM|HIGH"}`

// Input is everything the diagnostic prompt is assembled from.
type Input struct {
	UserText       string
	Recent         []domain.ConversationTurn
	ChatSummary    string
	VehicleSummary string
	OpenIssues     []domain.VehicleIssueRecord
	Similar        []domain.VehicleIssueRecord
}

// Diagnostic renders the user prompt for the main model call.
func Diagnostic(in Input) string {
	var b strings.Builder
	if v, ok := vehiclenlp.Extract(in.UserText); ok {
		fmt.Fprintf(&b, "Vehicle mentioned: %s\n\n", v)
	} else if v, ok := vehicleFromHistory(in.Recent); ok {
		fmt.Fprintf(&b, "Vehicle mentioned earlier: %s\n\n", v)
	}
	section(&b, "Vehicle history", in.VehicleSummary)
	section(&b, "Conversation summary", in.ChatSummary)
	if len(in.OpenIssues) > 0 {
		b.WriteString("Open issues on this vehicle:\n")
		for _, iss := range in.OpenIssues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", iss.Severity, iss.Title, iss.Summary)
		}
		b.WriteString("\n")
	}
	if len(in.Similar) > 0 {
		b.WriteString("Similar past issues:\n")
		for _, iss := range in.Similar {
			fmt.Fprintf(&b, "- %s: %s\n", iss.Title, iss.Summary)
		}
		b.WriteString("\n")
	}
	if len(in.Recent) > 0 {
		b.WriteString("Recent turns (oldest first):\n")
		for _, t := range in.Recent {
			b.WriteString(Turn(t))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s", strings.TrimSpace(in.UserText))
	return b.String()
}

// Turn renders one exchange for prompts and summaries.
func Turn(t domain.ConversationTurn) string {
	r := t.Response
	s := fmt.Sprintf("User: %s\nAssistant [%s, confidence %.2f]: %s", strings.TrimSpace(t.Prompt), r.Action, r.Confidence, r.Diagnosis)
	if r.Explanation != "" {
		s += ". " + r.Explanation
	}
	if len(r.FollowUpQuestions) > 0 {
		s += "\nAsked: " + strings.Join(r.FollowUpQuestions, " ")
	}
	return s
}

// Summary renders the user prompt for a summary update.
func Summary(previous string, t domain.ConversationTurn) string {
	if strings.TrimSpace(previous) == "" {
		previous = "None"
	}
	return fmt.Sprintf("Existing summary:\n%s\n\nNew turn:\n%s", previous, Turn(t))
}

func section(b *strings.Builder, title, body string) {
	if body = strings.TrimSpace(body); body != "" {
		fmt.Fprintf(b, "%s:\n%s\n\n", title, body)
	}
}

func vehicleFromHistory(turns []domain.ConversationTurn) (vehiclenlp.Vehicle, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if v, ok := vehiclenlp.Extract(turns[i].Prompt); ok {
			return v, true
		}
	}
	return vehiclenlp.Vehicle{}, false
}
