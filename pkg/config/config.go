// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreNeo4j    = "neo4j"
)

// LLM providers.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LLM selects the chat model endpoint.
type LLM struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// Config is the resolved configuration of a mechanic binary.
type Config struct {
	Port       string
	CORSOrigin string

	LLM        LLM
	OllamaURL  string
	EmbedModel string

	ModelTimeout    time.Duration
	SearchTimeout   time.Duration
	WorkshopTimeout time.Duration

	StoreBackend string
	DatabaseURL  string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string

	QdrantURL        string
	QdrantCollection string
	NATSURL          string
	RedisURL         string
	TavilyAPIKey     string
	GoogleMapsKey    string

	RulesFile  string
	PromoteDIY bool
}

var baseURLs = map[string]string{
	ProviderGroq:   "https://api.groq.com/openai/v1",
	ProviderOpenAI: "https://api.openai.com/v1",
}

var defaults = map[string]any{
	"port":              "8080",
	"cors_origin":       "*",
	"llm_provider":      ProviderGroq,
	"llm_model":         "llama-3.1-8b-instant",
	"ollama_url":        "http://localhost:11434",
	"embed_model":       "nomic-embed-text",
	"model_timeout":     "20s",
	"search_timeout":    "8s",
	"workshop_timeout":  "10s",
	"store_backend":     StoreMemory,
	"neo4j_url":         "neo4j://localhost:7687",
	"neo4j_user":        "neo4j",
	"neo4j_pass":        "password",
	"qdrant_collection": "mechanic_issues",
	"promote_diy":       false,
}

// LoadEnv loads a .env file into the process environment. A missing file is
// logged and ignored.
func LoadEnv(path string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if err := godotenv.Load(path); err != nil {
		log.Debug("no .env file loaded, continuing with existing environment", "path", path, "error", err)
		return
	}
	log.Info("loaded environment", "path", path)
}

// NewViper returns a viper instance with defaults and environment binding.
// Flags may be bound onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. When file is non-empty it is read as
// YAML; environment variables still take precedence over it.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:       v.GetString("port"),
		CORSOrigin: v.GetString("cors_origin"),
		LLM: LLM{
			Provider: strings.ToLower(v.GetString("llm_provider")),
			BaseURL:  v.GetString("llm_base_url"),
			APIKey:   v.GetString("llm_api_key"),
			Model:    v.GetString("llm_model"),
		},
		OllamaURL:        v.GetString("ollama_url"),
		EmbedModel:       v.GetString("embed_model"),
		ModelTimeout:     v.GetDuration("model_timeout"),
		SearchTimeout:    v.GetDuration("search_timeout"),
		WorkshopTimeout:  v.GetDuration("workshop_timeout"),
		StoreBackend:     strings.ToLower(v.GetString("store_backend")),
		DatabaseURL:      v.GetString("database_url"),
		Neo4jURL:         v.GetString("neo4j_url"),
		Neo4jUser:        v.GetString("neo4j_user"),
		Neo4jPass:        v.GetString("neo4j_pass"),
		QdrantURL:        v.GetString("qdrant_url"),
		QdrantCollection: v.GetString("qdrant_collection"),
		NATSURL:          v.GetString("nats_url"),
		RedisURL:         v.GetString("redis_url"),
		TavilyAPIKey:     v.GetString("tavily_api_key"),
		GoogleMapsKey:    v.GetString("google_maps_key"),
		RulesFile:        v.GetString("rules_file"),
		PromoteDIY:       v.GetBool("promote_diy"),
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v.GetString("groq_api_key")
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = baseURLs[cfg.LLM.Provider]
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: llm_provider %q", ErrInvalid, c.LLM.Provider)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreNeo4j:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: store_backend %q", ErrInvalid, c.StoreBackend)
	}
	for name, d := range map[string]time.Duration{
		"model_timeout":    c.ModelTimeout,
		"search_timeout":   c.SearchTimeout,
		"workshop_timeout": c.WorkshopTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	return nil
}
