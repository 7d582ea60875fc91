// Package agent runs one diagnosis turn end to end: memory load, model call,
// normalization, rule overlay, confidence blending, escalation, enrichment
// and persistence.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/engine/escalation"
	"github.com/WessleyAI/wessley-mechanic/engine/memory"
	"github.com/WessleyAI/wessley-mechanic/engine/normalize"
	"github.com/WessleyAI/wessley-mechanic/engine/rules"
	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
	"github.com/WessleyAI/wessley-mechanic/pkg/resilience"
)

// Generator produces model text from a system and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.SearchHit, error)
}

// WorkshopFinder returns map URLs of repair workshops near a coordinate.
type WorkshopFinder interface {
	FindWorkshops(ctx context.Context, lat, lng float64) ([]string, error)
}

var (
	ErrNoWorkshopFinder = errors.New("workshop lookup is not configured")
	ErrMissingGenerator = errors.New("agent: generator is required")
	ErrMissingStore     = errors.New("agent: store is required")
)

// Default collaborator budgets.
const (
	DefaultModelTimeout    = 20 * time.Second
	DefaultSearchTimeout   = 8 * time.Second
	DefaultWorkshopTimeout = 10 * time.Second
)

// Options configures an Engine. Generator and Store are required.
type Options struct {
	Generator Generator
	Searcher  Searcher
	Workshops WorkshopFinder

	Store     memory.Store
	Publisher memory.Publisher
	Index     memory.Index
	Policy    memory.Policy

	Overlay *rules.Overlay
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	ModelTimeout    time.Duration
	SearchTimeout   time.Duration
	WorkshopTimeout time.Duration
	Breaker         resilience.BreakerOpts
	Retry           fn.RetryOpts
}

// Engine holds every collaborator handle of the pipeline. It is safe for
// concurrent use; turns of the same chat are serialized.
type Engine struct {
	gen       Generator
	search    Searcher
	workshops WorkshopFinder
	memory    *memory.Coordinator
	overlay   *rules.Overlay
	metrics   *metrics.Metrics
	log       *slog.Logger

	modelGuard    *resilience.Guard
	searchGuard   *resilience.Guard
	workshopGuard *resilience.Guard

	locks *chatLocks
	turn  fn.Stage[turnState, turnState]
}

// New builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Generator == nil {
		return nil, ErrMissingGenerator
	}
	if opts.Store == nil {
		return nil, ErrMissingStore
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Overlay == nil {
		opts.Overlay = rules.New(nil, nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Breaker.FailThreshold == 0 {
		opts.Breaker = resilience.DefaultBreakerOpts
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fn.DefaultRetry
	}
	guard := func(name string, timeout, def time.Duration) *resilience.Guard {
		if timeout <= 0 {
			timeout = def
		}
		b := opts.Breaker
		b.OnStateChange = func(from, to resilience.State) {
			opts.Logger.Warn("circuit breaker state change", "collaborator", name, "from", from.String(), "to", to.String())
		}
		return resilience.NewGuard(resilience.GuardOpts{Name: name, Timeout: timeout, Breaker: b, Retry: opts.Retry})
	}

	e := &Engine{
		gen:           opts.Generator,
		search:        opts.Searcher,
		workshops:     opts.Workshops,
		overlay:       opts.Overlay,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		modelGuard:    guard("model", opts.ModelTimeout, DefaultModelTimeout),
		searchGuard:   guard("search", opts.SearchTimeout, DefaultSearchTimeout),
		workshopGuard: guard("workshops", opts.WorkshopTimeout, DefaultWorkshopTimeout),
		locks:         newChatLocks(),
	}
	e.memory = memory.New(opts.Store, memory.Options{
		Generator: guardedGenerator{e},
		Publisher: opts.Publisher,
		Index:     opts.Index,
		Policy:    opts.Policy,
		Logger:    opts.Logger,
	})
	e.turn = e.pipeline()
	return e, nil
}

// Memory exposes the coordinator for history reads.
func (e *Engine) Memory() *memory.Coordinator { return e.memory }

// guardedGenerator routes secondary model calls through the model guard.
type guardedGenerator struct{ e *Engine }

func (g guardedGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return g.e.generate(ctx, system, user)
}

func (e *Engine) generate(ctx context.Context, system, user string) (string, error) {
	out, err := resilience.Do(ctx, e.modelGuard, func(ctx context.Context) (string, error) {
		return e.gen.Generate(ctx, system, user)
	}).Unwrap()
	if errors.Is(err, resilience.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrCollaboratorTimeout, err)
	}
	return out, err
}

// TurnInput is one inbound user message.
type TurnInput struct {
	UserInput string
	ChatID    string
	UserID    string
	VehicleID string
	Lat       *float64
	Lng       *float64
}

// HandleTurn produces the response to one message. It never fails: any
// error along the way yields the safe fallback response.
func (e *Engine) HandleTurn(ctx context.Context, in TurnInput) domain.DiagnosticResponse {
	start := time.Now()
	in.UserInput = strings.TrimSpace(in.UserInput)
	if in.ChatID == "" {
		in.ChatID = uuid.NewString()
	}
	log := e.log.With("chat_id", in.ChatID)

	if err := domain.ValidateMessage(in.UserInput); err != nil {
		log.Warn("rejecting message", "err", err)
		e.metrics.Fallbacks.WithLabelValues("invalid_input").Inc()
		return normalize.Fallback(in.ChatID)
	}

	unlock := e.locks.Lock(in.ChatID)
	defer unlock()

	loadStart := time.Now()
	mem := e.memory.Load(ctx, in.ChatID, in.VehicleID, in.UserInput)
	e.metrics.Since("memory_load", loadStart)
	if mem.Degraded {
		e.metrics.StoreErrors.WithLabelValues("load").Inc()
	}

	var resp domain.DiagnosticResponse
	if sc, ok := escalation.ShortCircuit(in.UserInput, in.ChatID, mem.Recent); ok {
		resp = e.workshopResults(ctx, in, sc)
		from := "NONE"
		if n := len(mem.Recent); n > 0 {
			from = string(mem.Recent[n-1].Response.Action)
		}
		e.metrics.Transitions.WithLabelValues(escalation.RuleWorkshopIntent, from, string(resp.Action)).Inc()
		log.Info("workshop request", "urls", len(resp.WorkshopURLs))
	} else {
		resp = e.turn(ctx, turnState{in: in, mem: mem}).OrElse(func(err error) turnState {
			reason := fallbackReason(err)
			log.Warn("pipeline failed, using fallback", "reason", reason, "err", err)
			e.metrics.Fallbacks.WithLabelValues(reason).Inc()
			return turnState{resp: e.guardedFallback(in)}
		}).resp
	}
	resp = domain.Enforce(resp)
	resp.ChatID = in.ChatID

	e.record(ctx, in, resp, mem.ChatSummary)
	e.metrics.Turns.WithLabelValues(string(resp.Action)).Inc()
	log.Info("turn handled", "action", resp.Action, "confidence", resp.Confidence, "duration", time.Since(start))
	return resp
}

// guardedFallback is the safe response with the symptom guards applied, so
// a recognised symptom still gets its own questions when the model fails.
// Trouble-code rules are skipped: the fallback never escalates.
func (e *Engine) guardedFallback(in TurnInput) domain.DiagnosticResponse {
	resp, out := e.overlay.ApplyGuards(in.UserInput, normalize.Fallback(in.ChatID))
	if out.Fired() {
		e.metrics.Overrides.WithLabelValues(out.Rule).Inc()
	}
	return resp
}

func (e *Engine) record(ctx context.Context, in TurnInput, resp domain.DiagnosticResponse, prev *domain.ChatIssueSummary) {
	out, err := e.memory.Record(ctx, domain.ConversationTurn{
		ChatID:    in.ChatID,
		UserID:    in.UserID,
		VehicleID: in.VehicleID,
		Prompt:    in.UserInput,
		Response:  resp,
	}, prev)
	if err != nil {
		e.log.Error("recording turn failed", "chat_id", in.ChatID, "err", err)
		e.metrics.StoreErrors.WithLabelValues("record").Inc()
	}
	if out.Promoted != nil {
		e.metrics.Promotions.Inc()
		e.log.Info("issue promoted", "vehicle_id", out.Promoted.VehicleID, "issue_key", out.Promoted.IssueKey)
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCollaboratorTimeout), errors.Is(err, resilience.ErrTimeout):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	default:
		return "model_error"
	}
}
