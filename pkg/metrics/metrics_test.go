package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Turns.WithLabelValues("ASK").Inc()
	m.Turns.WithLabelValues("ASK").Inc()
	m.Turns.WithLabelValues("DIY").Inc()
	m.Promotions.Inc()

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("ASK")); got != 2 {
		t.Fatalf("ASK turns = %v", got)
	}
	if got := testutil.ToFloat64(m.Promotions); got != 1 {
		t.Fatalf("promotions = %v", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Fallbacks.WithLabelValues("timeout").Inc()
	if got := testutil.ToFloat64(b.Fallbacks.WithLabelValues("timeout")); got != 0 {
		t.Fatalf("registries should not share state, got %v", got)
	}
}

func TestSince(t *testing.T) {
	m := New()
	m.Since("normalize", time.Now().Add(-50*time.Millisecond))
	if n := testutil.CollectAndCount(m.StageLatency); n != 1 {
		t.Fatalf("expected one series, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Overrides.WithLabelValues("code_lookup").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `mechanic_rule_overrides_total{rule="code_lookup"} 1`) {
		t.Fatalf("unexpected exposition:\n%s", body)
	}
}
