package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ProviderGroq, cfg.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 20*time.Second, cfg.ModelTimeout)
	assert.Equal(t, "mechanic_issues", cfg.QdrantCollection)
	assert.False(t, cfg.PromoteDIY)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("PROMOTE_DIY", "true")
	t.Setenv("SEARCH_TIMEOUT", "3s")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.PromoteDIY)
	assert.Equal(t, 3*time.Second, cfg.SearchTimeout)
}

func TestOpenAIDefaultsBaseURL(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mechanic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\nllm_model: gpt-4o-mini\nrules_file: /etc/codes.yaml\n"), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "/etc/codes.yaml", cfg.RulesFile)

	_, err = Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"LLM_PROVIDER": "anthropic"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}},
		{"zero timeout", map[string]string{"MODEL_TIMEOUT": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(NewViper(), "")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MECHANIC_TEST_ONLY_KEY=from-dotenv\n"), 0o600))
	t.Setenv("MECHANIC_TEST_ONLY_KEY", "")
	os.Unsetenv("MECHANIC_TEST_ONLY_KEY")

	LoadEnv(path, nil)
	assert.Equal(t, "from-dotenv", os.Getenv("MECHANIC_TEST_ONLY_KEY"))

	LoadEnv(filepath.Join(t.TempDir(), "absent.env"), nil)
}
