package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbook/api/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Provider:       "gemini",
		GeminiAPIKey:   "g-key",
		GeminiModel:    "gemini-2.5-flash",
		OpenAIAPIKey:   "o-key",
		OpenAIModel:    "gpt-4o",
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		CallTimeout:    time.Minute,
		RequestTimeout: 2 * time.Minute,
		DBDriver:       "sqlite3",
		CacheTTL:       time.Hour,
	}
}

func TestNewWithDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "app.db")

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []string{"gemini", "gpt"}, a.Engines.Names())
	def, err := a.Engines.Default()
	require.NoError(t, err)
	assert.Equal(t, "gemini", def.Name())
	require.NotNil(t, a.Items)
	require.NotNil(t, a.Cache)
	assert.NotNil(t, a.Pinger())

	tags, err := a.Items.Tags.List(ctx, "", "math")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, tg := range tags {
		names[tg.Name] = true
	}
	assert.True(t, names["勾股定理"])
	assert.True(t, names["七年级上"])
	assert.True(t, names["高三下"])

	require.NoError(t, SeedTags(ctx, a.Items.Tags, a.Vocab), "seeding is repeatable")
	again, err := a.Items.Tags.List(ctx, "", "math")
	require.NoError(t, err)
	assert.Len(t, again, len(tags))
}

func TestNewWithoutDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = ""

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, a.Items)
	assert.Nil(t, a.Pinger())
	assert.Equal(t, []string{"gemini"}, a.Engines.Names())
}

func TestNewFromEnvWithoutDatabase(t *testing.T) {
	for _, k := range []string{
		"AI_PROVIDER", "OPENAI_API_KEY", "GOOGLE_API_KEY", "VOCAB_FILE", "PROMPT_DIR", "DB_DRIVER", "DATABASE_URL",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "PGHOST", "PGPORT",
		"AI_MAX_ATTEMPTS", "AI_RETRY_BASE_DELAY", "AI_CALL_TIMEOUT", "AI_REQUEST_TIMEOUT", "ANALYSIS_CACHE_TTL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Items)
	assert.Nil(t, a.Pinger())
}

func TestNewMissingDefaultEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "gpt"
	cfg.OpenAIAPIKey = ""

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown llm_name")
}

func TestNewBadVocabulary(t *testing.T) {
	cfg := testConfig()
	cfg.VocabFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
