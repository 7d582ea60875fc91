package agent

import (
	"context"
	"strings"
	"time"

	"github.com/WessleyAI/wessley-mechanic/engine/confidence"
	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/engine/escalation"
	"github.com/WessleyAI/wessley-mechanic/engine/memory"
	"github.com/WessleyAI/wessley-mechanic/engine/normalize"
	"github.com/WessleyAI/wessley-mechanic/engine/prompt"
	"github.com/WessleyAI/wessley-mechanic/engine/rules"
	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
)

// turnState flows through the pipeline stages.
type turnState struct {
	in          TurnInput
	mem         memory.Context
	raw         string
	resp        domain.DiagnosticResponse
	outcome     rules.Outcome
	transitions []escalation.Transition
}

func (e *Engine) pipeline() fn.Stage[turnState, turnState] {
	return fn.Pipeline(
		e.stage("model", e.callModel),
		e.stage("normalize", e.normalizeStage),
		fn.TapStage(e.logProposal),
		e.stage("overlay", e.overlayStage),
		e.stage("confidence", fn.MapStage(blendConfidence)),
		e.stage("escalate", e.escalateStage),
		e.stage("enrich", e.enrichStage),
		e.stage("enforce", fn.MapStage(enforce)),
	)
}

// stage adds tracing and latency accounting to a pipeline step.
func (e *Engine) stage(name string, s fn.Stage[turnState, turnState]) fn.Stage[turnState, turnState] {
	return fn.TracedStage("agent."+name, func(ctx context.Context, st turnState) fn.Result[turnState] {
		defer e.metrics.Since(name, time.Now())
		return s(ctx, st)
	})
}

func (e *Engine) callModel(ctx context.Context, st turnState) fn.Result[turnState] {
	raw, err := e.generate(ctx, prompt.System, prompt.Diagnostic(st.mem.PromptInput(st.in.UserInput)))
	if err != nil {
		return fn.Errf[turnState]("agent: model call: %w", err)
	}
	st.raw = raw
	return fn.Ok(st)
}

func (e *Engine) normalizeStage(_ context.Context, st turnState) fn.Result[turnState] {
	return fn.MapResult(normalize.Normalize(st.raw, st.in.ChatID), func(r domain.DiagnosticResponse) turnState {
		st.resp = r
		return st
	})
}

func (e *Engine) logProposal(_ context.Context, st turnState) {
	e.log.Debug("model proposal", "chat_id", st.in.ChatID, "action", st.resp.Action, "confidence", st.resp.Confidence)
}

func (e *Engine) overlayStage(_ context.Context, st turnState) fn.Result[turnState] {
	st.resp, st.outcome = e.overlay.Apply(st.in.UserInput, st.resp)
	if st.outcome.Fired() {
		e.metrics.Overrides.WithLabelValues(st.outcome.Rule).Inc()
	}
	return fn.Ok(st)
}

func blendConfidence(st turnState) turnState {
	st.resp = confidence.Apply(st.mem.Recent, st.resp, st.outcome.Floor)
	return st
}

func (e *Engine) escalateStage(ctx context.Context, st turnState) fn.Result[turnState] {
	st.resp, st.transitions = escalation.Decide(st.resp, st.mem.Recent)
	if st.resp.Action == domain.ActionWorkshopResults {
		if t, ok := e.modelWorkshopResults(ctx, &st); ok {
			st.transitions = append(st.transitions, t)
		}
	}
	for _, t := range st.transitions {
		e.metrics.Transitions.WithLabelValues(t.Rule, string(t.From), string(t.To)).Inc()
		e.log.Debug("escalation transition", "chat_id", st.in.ChatID, "rule", t.Rule, "from", t.From, "to", t.To)
	}
	return fn.Ok(st)
}

// modelWorkshopResults handles a WORKSHOP_RESULTS proposed by the model
// the same way as the keyword short-circuit. Without a lookup collaborator
// it becomes a consent question instead.
func (e *Engine) modelWorkshopResults(ctx context.Context, st *turnState) (escalation.Transition, bool) {
	if e.workshops == nil {
		st.resp.Action = domain.ActionConfirmWorkshop
		st.resp = domain.Enforce(st.resp)
		return escalation.Transition{
			From: domain.ActionWorkshopResults,
			To:   domain.ActionConfirmWorkshop,
			Rule: escalation.RuleWorkshopUnavailable,
		}, true
	}
	if n := len(st.mem.Recent); n > 0 && strings.TrimSpace(st.resp.Diagnosis) == "" {
		st.resp.Diagnosis = st.mem.Recent[n-1].Response.Diagnosis
	}
	if strings.TrimSpace(st.resp.Explanation) == "" {
		st.resp.Explanation = escalation.WorkshopResultsNote
	}
	st.resp = e.workshopResults(ctx, st.in, st.resp)
	return escalation.Transition{}, false
}

func enforce(st turnState) turnState {
	st.resp = domain.Enforce(st.resp)
	st.resp.ChatID = st.in.ChatID
	return st
}
