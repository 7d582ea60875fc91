package confidence

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

func ptr(v float64) *float64 { return &v }

func TestBlend(t *testing.T) {
	tests := []struct {
		name string
		prev *float64
		cur  float64
		want float64
	}{
		{"first turn rounds", nil, 0.876, 0.88},
		{"weighted", ptr(0.5), 1.0, 0.7},
		{"weighted down", ptr(0.9), 0.4, 0.7},
		{"both zero", ptr(0), 0, 0},
		{"clamps input", ptr(2), -1, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Blend(tt.prev, tt.cur); got != tt.want {
				t.Fatalf("Blend = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrevious(t *testing.T) {
	if Previous(nil) != nil {
		t.Fatal("no turns should give nil")
	}
	turns := []domain.ConversationTurn{
		{Response: domain.DiagnosticResponse{Confidence: 0.3}},
		{Response: domain.DiagnosticResponse{Confidence: 0.8}},
	}
	if p := Previous(turns); p == nil || *p != 0.8 {
		t.Fatalf("expected most recent confidence 0.8, got %v", p)
	}
}

func TestApplyEscalationFloor(t *testing.T) {
	turns := []domain.ConversationTurn{{Response: domain.DiagnosticResponse{Confidence: 0.2}}}
	r := Apply(turns, domain.DiagnosticResponse{Confidence: 0.8}, 0.8)
	if r.Confidence != 0.8 {
		t.Fatalf("escalation floor should survive blending, got %v", r.Confidence)
	}
}

func TestApplyBlendsGuardedTurn(t *testing.T) {
	turns := []domain.ConversationTurn{{Response: domain.DiagnosticResponse{Confidence: 0.4}}}
	// A symptom guard has already raised the proposal to its 0.75 floor.
	r := Apply(turns, domain.DiagnosticResponse{Confidence: 0.75}, 0)
	if r.Confidence != 0.54 {
		t.Fatalf("expected 0.6*0.4 + 0.4*0.75 = 0.54, got %v", r.Confidence)
	}
}

func TestBlendStaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prev := rapid.Float64Range(0, 1).Draw(rt, "prev")
		cur := rapid.Float64Range(0, 1).Draw(rt, "cur")
		got := Blend(&prev, cur)
		if got < 0 || got > 1 {
			rt.Fatalf("Blend(%v, %v) = %v out of range", prev, cur, got)
		}
		lo, hi := math.Min(prev, cur), math.Max(prev, cur)
		if got < lo-0.005 || got > hi+0.005 {
			rt.Fatalf("Blend(%v, %v) = %v outside inputs", prev, cur, got)
		}
	})
}

func TestRepeatedInputConvergesMonotonically(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := rapid.Float64Range(0, 1).Draw(rt, "start")
		target := rapid.Float64Range(0, 1).Draw(rt, "target")
		prev := domain.Round2(start)
		dist := math.Abs(prev - target)
		for i := 0; i < 30; i++ {
			next := Blend(&prev, target)
			d := math.Abs(next - target)
			if d > dist+0.005 {
				rt.Fatalf("step %d moved away from %v: %v -> %v", i, target, prev, next)
			}
			if (prev <= target && next > target+0.005) || (prev >= target && next < target-0.005) {
				rt.Fatalf("step %d overshot %v: %v -> %v", i, target, prev, next)
			}
			prev, dist = next, d
		}
	})
}
