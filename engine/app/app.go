// Package app assembles an agent.Engine and its collaborators from
// configuration. Optional backends are connected only when configured.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-mechanic/engine/agent"
	"github.com/WessleyAI/wessley-mechanic/engine/graph"
	"github.com/WessleyAI/wessley-mechanic/engine/memory"
	"github.com/WessleyAI/wessley-mechanic/engine/memstore"
	"github.com/WessleyAI/wessley-mechanic/engine/pgstore"
	"github.com/WessleyAI/wessley-mechanic/engine/rules"
	"github.com/WessleyAI/wessley-mechanic/engine/semantic"
	"github.com/WessleyAI/wessley-mechanic/pkg/cache"
	"github.com/WessleyAI/wessley-mechanic/pkg/config"
	"github.com/WessleyAI/wessley-mechanic/pkg/llm"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
	"github.com/WessleyAI/wessley-mechanic/pkg/natsutil"
	"github.com/WessleyAI/wessley-mechanic/pkg/ollama"
	"github.com/WessleyAI/wessley-mechanic/pkg/places"
	"github.com/WessleyAI/wessley-mechanic/pkg/websearch"
)

// App is a wired engine plus the connections it owns.
type App struct {
	Engine  *agent.Engine
	Metrics *metrics.Metrics

	closers []func()
}

// Close releases every connection in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(f func()) { a.closers = append(a.closers, f) }

// Build connects the configured backends and builds the engine. On error
// every connection opened so far is closed.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Metrics: metrics.New()}
	if err := a.build(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, err := a.store(ctx, cfg, log)
	if err != nil {
		return err
	}

	codes := rules.DefaultCodes
	if cfg.RulesFile != "" {
		if codes, err = rules.LoadCodes(cfg.RulesFile, rules.DefaultCodes); err != nil {
			return err
		}
		log.Info("loaded code table", "path", cfg.RulesFile, "codes", len(codes))
	}

	policy := memory.DefaultPolicy()
	policy.PromoteDIY = cfg.PromoteDIY

	opts := agent.Options{
		Generator:       Generator(cfg, log),
		Store:           store,
		Policy:          policy,
		Overlay:         rules.New(codes, nil),
		Metrics:         a.Metrics,
		Logger:          log,
		ModelTimeout:    cfg.ModelTimeout,
		SearchTimeout:   cfg.SearchTimeout,
		WorkshopTimeout: cfg.WorkshopTimeout,
	}

	var kv cache.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			// Lookups still work uncached.
			log.Warn("redis unavailable, caching disabled", "err", err)
		} else {
			a.onClose(func() { rc.Close() })
			kv = rc
		}
	}
	if cfg.TavilyAPIKey != "" {
		opts.Searcher = websearch.New(cfg.TavilyAPIKey, websearch.WithCache(kv))
	} else {
		log.Info("tavily key not set, search enrichment disabled")
	}
	if cfg.GoogleMapsKey != "" {
		opts.Workshops = places.New(cfg.GoogleMapsKey, places.WithCache(kv))
	} else {
		log.Info("google maps key not set, workshop lookup disabled")
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("mechanic"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		a.onClose(nc.Close)
		opts.Publisher = natsutil.NewPublisher(nc)
	}

	if cfg.QdrantURL != "" {
		idx, err := a.index(ctx, cfg)
		if err != nil {
			return err
		}
		opts.Index = idx
	}

	a.Engine, err = agent.New(opts)
	return err
}

// Generator returns the model client for the configured provider.
func Generator(cfg config.Config, log *slog.Logger) agent.Generator {
	if cfg.LLM.Provider == config.ProviderOllama {
		return ollama.New(cfg.OllamaURL, cfg.LLM.Model, cfg.EmbedModel)
	}
	return llm.New(llm.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}, log)
}

func (a *App) store(ctx context.Context, cfg config.Config, log *slog.Logger) (memory.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		st, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.DatabaseURL, MaxOpenConns: 10, MaxIdleConns: 5})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { st.Close() })
		log.Info("memory store", "backend", "postgres")
		return st, nil
	case config.StoreNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		a.onClose(func() { driver.Close(context.Background()) })
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return nil, fmt.Errorf("neo4j connect: %w", err)
		}
		st := graph.New(driver, "")
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Info("memory store", "backend", "neo4j")
		return st, nil
	default:
		log.Info("memory store", "backend", "memory")
		return memstore.New(), nil
	}
}

func (a *App) index(ctx context.Context, cfg config.Config) (*semantic.IssueIndex, error) {
	emb := ollama.New(cfg.OllamaURL, "", cfg.EmbedModel)
	probe, err := emb.Embed(ctx, "engine misfire")
	if err != nil {
		return nil, fmt.Errorf("probe embedding size: %w", err)
	}
	idx, err := semantic.New(cfg.QdrantURL, cfg.QdrantCollection, emb)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { idx.Close() })
	if err := idx.EnsureCollection(ctx, len(probe)); err != nil {
		return nil, err
	}
	return idx, nil
}
