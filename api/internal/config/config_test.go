package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"PORT", "AI_PROVIDER", "GEMINI_API_KEY", "GOOGLE_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "AI_MAX_ATTEMPTS", "AI_RETRY_BASE_DELAY",
	"AI_CALL_TIMEOUT", "AI_REQUEST_TIMEOUT", "ANALYSIS_CACHE_TTL", "VOCAB_FILE", "PROMPT_DIR",
	"DB_DRIVER", "DATABASE_URL", "POSTGRES_USER", "POSTGRES_PASSWORD", "PGHOST", "PGPORT", "POSTGRES_DB",
	"TELEGRAM_BOT_TOKEN", "WEBHOOK_URL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8000", c.Port)
	assert.Equal(t, "gemini", c.Provider)
	assert.Equal(t, "g-key", c.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-flash", c.GeminiModel)
	assert.Equal(t, "gpt-4o", c.OpenAIModel)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, time.Second, c.RetryBaseDelay)
	assert.Equal(t, 90*time.Second, c.CallTimeout)
	assert.Equal(t, 180*time.Second, c.RequestTimeout)
	assert.Equal(t, 720*time.Hour, c.CacheTTL)
	assert.Equal(t, "pgx", c.DBDriver)
	assert.Empty(t, c.DatabaseURL, "no DATABASE_URL and no POSTGRES_* means no database")
	assert.Equal(t, "info", c.LogLevel)
	require.NoError(t, c.Validate())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "GPT")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("AI_MAX_ATTEMPTS", "5")
	t.Setenv("AI_CALL_TIMEOUT", "30s")
	t.Setenv("DB_DRIVER", "sqlite3")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt", c.Provider)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
	assert.Empty(t, c.DatabaseURL, "only pgx builds a DSN from POSTGRES_*")
	require.NoError(t, c.Validate())
}

func TestResolveDSN(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"nothing set", nil, ""},
		{"explicit url", map[string]string{"DATABASE_URL": "postgres://u:p@h:1/d"}, "postgres://u:p@h:1/d"},
		{"host only", map[string]string{"PGHOST": "pg"}, "postgres://errbook:@pg:5432/errbook?sslmode=disable"},
		{"user and db", map[string]string{"POSTGRES_USER": "app", "POSTGRES_DB": "notes"}, "postgres://app:@db:5432/notes?sslmode=disable"},
		{"other driver ignores PG*", map[string]string{"DB_DRIVER": "mysql", "PGHOST": "pg"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tc.want, resolveDSN())
		})
	}
}

func TestLoadBadNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_MAX_ATTEMPTS", "three")
	_, err := Load()
	assert.ErrorContains(t, err, "AI_MAX_ATTEMPTS")

	clearEnv(t)
	t.Setenv("AI_RETRY_BASE_DELAY", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "AI_RETRY_BASE_DELAY")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Provider:       "gemini",
			GeminiAPIKey:   "k",
			MaxAttempts:    3,
			CallTimeout:    time.Minute,
			RequestTimeout: 2 * time.Minute,
			DBDriver:       "pgx",
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing gemini key": func(c *Config) { c.GeminiAPIKey = "" },
		"missing openai key": func(c *Config) { c.Provider = "openai" },
		"unknown provider":   func(c *Config) { c.Provider = "claude" },
		"zero attempts":      func(c *Config) { c.MaxAttempts = 0 },
		"request < call":     func(c *Config) { c.RequestTimeout = time.Second },
		"unknown driver":     func(c *Config) { c.DBDriver = "oracle" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestTelegramToken(t *testing.T) {
	clearEnv(t)
	_, err := (&Config{}).TelegramToken()
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")

	tok, err := (&Config{TelegramBotToken: "123:abc"}).TelegramToken()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", tok)
}
