package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

func diyProposal() domain.DiagnosticResponse {
	return domain.DiagnosticResponse{
		Diagnosis:   "Model guess",
		Explanation: "Model explanation",
		Confidence:  0.9,
		Severity:    0.3,
		Action:      domain.ActionDIY,
		Steps:       []string{"Do the thing"},
		YouTubeURLs: []string{"https://youtu.be/x"},
	}
}

func TestFindCode(t *testing.T) {
	tests := []struct{ in, want string }{
		{"my scanner says p0171", "P0171"},
		{"Codes U0100 and P0300", "U0100"},
		{"P01711 is not a code", ""},
		{"no codes here", ""},
		{"(C0035)", "C0035"},
	}
	for _, tt := range tests {
		if got := FindCode(tt.in); got != tt.want {
			t.Errorf("FindCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApply_NonDIYCodeForcesEscalate(t *testing.T) {
	o := New(nil, nil)
	r, out := o.Apply("Scanner shows P0700, can I fix it myself?", diyProposal())

	assert.Equal(t, domain.ActionEscalate, r.Action)
	assert.GreaterOrEqual(t, r.Confidence, EscalateFloor)
	assert.Empty(t, r.Steps)
	assert.Empty(t, r.YouTubeURLs)
	assert.Contains(t, r.Diagnosis, "Transmission Control System")
	assert.Equal(t, "code_lookup", out.Rule)
	assert.True(t, out.KnownCode)
	assert.Equal(t, EscalateFloor, out.Floor)
}

func TestApply_MultiCauseCodeForcesAsk(t *testing.T) {
	o := New(nil, nil)
	r, out := o.Apply("P0171 check engine light", diyProposal())

	assert.Equal(t, domain.ActionAsk, r.Action)
	assert.Equal(t, DefaultCodes["P0171"].Questions, r.FollowUpQuestions)
	assert.Equal(t, "P0171: System Too Lean (Bank 1)", r.Diagnosis)
	assert.Empty(t, r.Steps)
	assert.Equal(t, "code_lookup", out.Rule, "code lookup outranks the warning light guard")
}

func TestApply_SingleCauseDIYCodeKeepsModelAction(t *testing.T) {
	o := New(nil, nil)
	r, out := o.Apply("I got P0455 after filling up", diyProposal())

	assert.Equal(t, domain.ActionDIY, r.Action)
	assert.Contains(t, r.Diagnosis, "Large Leak")
	assert.Equal(t, DefaultCodes["P0455"].Description, r.Explanation)
	assert.True(t, out.Fired())
}

func TestApply_EscalatedCodeNotSoftenedByGuard(t *testing.T) {
	o := New(nil, nil)
	r, out := o.Apply("brake warning light and code C0035", diyProposal())

	assert.Equal(t, domain.ActionEscalate, r.Action)
	assert.Equal(t, "code_lookup", out.Rule)
}

func TestApply_GearGuard(t *testing.T) {
	o := New(nil, nil)
	proposal := domain.DiagnosticResponse{Action: domain.ActionDIY, Confidence: 0.3, Steps: []string{"x"}}
	r, out := o.Apply("my car makes a grinding noise when I change gears", proposal)

	assert.Equal(t, domain.ActionAsk, r.Action)
	assert.Equal(t, "Difficulty changing gears", r.Diagnosis)
	assert.NotEmpty(t, r.FollowUpQuestions)
	assert.GreaterOrEqual(t, r.Confidence, 0.75)
	assert.Equal(t, "symptom:gear_issue", out.Rule)
	assert.Zero(t, out.Floor, "guards raise the proposal before blending")
}

func TestApplyGuards_SkipsCodeLookup(t *testing.T) {
	o := New(nil, nil)
	fallback := domain.Enforce(domain.DiagnosticResponse{Action: domain.ActionAsk, Confidence: 0.5, Severity: 0.5})

	r, out := o.ApplyGuards("code C0035 and the brake pedal feels spongy", fallback)
	assert.Equal(t, domain.ActionAsk, r.Action)
	assert.Equal(t, "Braking issue detected", r.Diagnosis)
	assert.Equal(t, "symptom:brake_issue", out.Rule)

	r, out = o.ApplyGuards("P0420 showed up on my scanner", fallback)
	assert.False(t, out.Fired())
	assert.Equal(t, "P0420", out.Code)
	assert.Equal(t, fallback, r)
}

func TestApply_GuardNeverLowersConfidence(t *testing.T) {
	o := New(nil, nil)
	r, _ := o.Apply("there is a knocking noise", domain.DiagnosticResponse{Action: domain.ActionAsk, Confidence: 0.9})
	assert.Equal(t, 0.9, r.Confidence)
}

func TestApply_GuardPriorityOrder(t *testing.T) {
	o := New(nil, nil)
	_, out := o.Apply("grinding when braking", domain.DiagnosticResponse{})
	assert.Equal(t, "symptom:brake_issue", out.Rule)

	_, out = o.Apply("Engine is SHAKING and there's smoke", domain.DiagnosticResponse{})
	assert.Equal(t, "symptom:smoke_issue", out.Rule)
}

func TestApply_UnknownCodeFallsThroughToGuards(t *testing.T) {
	o := New(nil, nil)
	r, out := o.Apply("P1234 and the engine light is on", domain.DiagnosticResponse{Action: domain.ActionAsk})

	assert.Equal(t, "P1234", out.UnknownCode())
	assert.Equal(t, "symptom:warning_lights", out.Rule)
	assert.Equal(t, "Dashboard warning light detected", r.Diagnosis)
}

func TestApply_NoMatchOnlyEnforces(t *testing.T) {
	o := New(nil, nil)
	in := diyProposal()
	r, out := o.Apply("the radio presets keep resetting", in)

	assert.False(t, out.Fired())
	assert.Equal(t, in.Diagnosis, r.Diagnosis)
	assert.Equal(t, domain.ActionDIY, r.Action)
}

func TestParseCodes(t *testing.T) {
	data := []byte(`
p0420:
  meaning: Catalyst efficiency low
  description: Custom text
  diy_possible: true
P0999:
  meaning: Shift solenoid F
  description: Transmission solenoid fault
  diy_possible: false
`)
	codes, err := ParseCodes(data, DefaultCodes)
	require.NoError(t, err)
	assert.True(t, codes["P0420"].DIYPossible)
	assert.Equal(t, "Shift solenoid F", codes["P0999"].Meaning)
	assert.Equal(t, DefaultCodes["P0171"], codes["P0171"])
	assert.False(t, DefaultCodes["P0420"].DIYPossible, "base table must not be mutated")

	_, err = ParseCodes([]byte("NOTACODE:\n  meaning: x\n"), nil)
	assert.Error(t, err)
}

func TestLoadCodesMissingFile(t *testing.T) {
	_, err := LoadCodes("/nonexistent/codes.yaml", DefaultCodes)
	assert.Error(t, err)
}
