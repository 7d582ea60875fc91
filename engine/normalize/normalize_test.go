package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

func TestExtract(t *testing.T) {
	obj, err := Extract("Sure! Here is the result:\n```json\n{\"action\":\"ASK\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"ASK"}`, obj)

	_, err = Extract("no braces here")
	assert.ErrorIs(t, err, domain.ErrParse)

	_, err = Extract("} backwards {")
	assert.ErrorIs(t, err, domain.ErrParse)

	_, err = Extract(`{"action": "ASK",}`)
	var pe *domain.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "malformed JSON object", pe.Reason)
}

func TestNormalize_FullResponse(t *testing.T) {
	raw := `{"diagnosis":"Loose fuel cap","explanation":"EVAP leak","severity":0.2,"confidence":0.85,
		"action":"DIY","steps":["Tighten the cap until it clicks"],"follow_up_questions":["ignored"],
		"youtube_urls":["https://youtu.be/abc"]}`
	resp, err := Normalize(raw, "chat-1").Unwrap()
	require.NoError(t, err)

	assert.Equal(t, "Loose fuel cap", resp.Diagnosis)
	assert.Equal(t, domain.ActionDIY, resp.Action)
	assert.Equal(t, 0.85, resp.Confidence)
	assert.Equal(t, []string{"Tighten the cap until it clicks"}, resp.Steps)
	assert.Empty(t, resp.FollowUpQuestions)
	assert.Equal(t, "chat-1", resp.ChatID)
}

func TestNormalize_DefaultsAndCoercion(t *testing.T) {
	raw := `{"severity":"0.9","confidence":"high","action":"maybe","steps":"not a list"}`
	resp, err := Normalize(raw, "c").Unwrap()
	require.NoError(t, err)

	assert.Equal(t, 0.9, resp.Severity, "numeric strings are accepted")
	assert.Equal(t, DefaultConfidence, resp.Confidence, "garbage resets to default")
	assert.Equal(t, domain.ActionAsk, resp.Action, "unknown action becomes ASK")
	assert.Empty(t, resp.Steps)
	assert.Equal(t, domain.FallbackQuestions(), resp.FollowUpQuestions)
}

func TestNormalize_CaseInsensitiveAction(t *testing.T) {
	resp, err := Normalize(`{"action":" escalate ","diagnosis":"Brake fluid leak"}`, "c").Unwrap()
	require.NoError(t, err)
	assert.Equal(t, domain.ActionEscalate, resp.Action)
}

func TestNormalize_ClampsOutOfRange(t *testing.T) {
	resp, err := Normalize(`{"severity":7,"confidence":-3}`, "c").Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Severity)
	assert.Equal(t, 0.0, resp.Confidence)
}

func TestNormalize_LegacySingularQuestion(t *testing.T) {
	resp, err := Normalize(`{"action":"ASK","follow_up_question":"Is the light flashing?"}`, "c").Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []string{"Is the light flashing?"}, resp.FollowUpQuestions)
}

func TestNormalize_ParseFailure(t *testing.T) {
	r := Normalize("I think it's the alternator.", "c")
	require.True(t, r.IsErr())
	assert.ErrorIs(t, r.Cause(), domain.ErrParse)

	r = Normalize(`{"a": [1, 2}`, "c")
	assert.ErrorIs(t, r.Cause(), domain.ErrParse)
}

func TestFallback(t *testing.T) {
	fb := Fallback("chat-9")
	assert.Equal(t, domain.ActionAsk, fb.Action)
	assert.NotEqual(t, domain.ActionEscalate, fb.Action)
	assert.GreaterOrEqual(t, fb.Confidence, 0.4)
	assert.LessOrEqual(t, fb.Confidence, 0.6)
	assert.NotEmpty(t, fb.FollowUpQuestions)
	assert.Equal(t, "chat-9", fb.ChatID)
	assert.NoError(t, domain.Validate(fb))
}
