package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

type Config struct {
	Port string

	Provider      string // gemini | gpt
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	MaxAttempts    int
	RetryBaseDelay time.Duration
	CallTimeout    time.Duration
	RequestTimeout time.Duration

	VocabFile string
	PromptDir string

	DBDriver    string // pgx | sqlite3 | mysql
	DatabaseURL string
	CacheTTL    time.Duration

	TelegramBotToken string
	WebhookURL       string

	LogLevel  string
	LogFormat string
}

func mustEnv(k string) (string, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return "", eris.Errorf("missing required env %s", k)
	}
	return v, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, eris.Wrapf(err, "env %s", k)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, eris.Wrapf(err, "env %s", k)
	}
	return d, nil
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "load .env")
	}

	c := &Config{
		Port: getEnv("PORT", "8000"),

		Provider:      strings.ToLower(getEnv("AI_PROVIDER", "gemini")),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		VocabFile: getEnv("VOCAB_FILE", ""),
		PromptDir: getEnv("PROMPT_DIR", ""),

		DBDriver:    getEnv("DB_DRIVER", "pgx"),
		DatabaseURL: resolveDSN(),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if c.MaxAttempts, err = getInt("AI_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if c.RetryBaseDelay, err = getDuration("AI_RETRY_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if c.CallTimeout, err = getDuration("AI_CALL_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if c.RequestTimeout, err = getDuration("AI_REQUEST_TIMEOUT", 180*time.Second); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = getDuration("ANALYSIS_CACHE_TTL", 720*time.Hour); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks what every entry point needs: a usable provider and sane limits.
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return eris.New("missing required env GEMINI_API_KEY for AI_PROVIDER=gemini")
		}
	case "gpt", "openai":
		if c.OpenAIAPIKey == "" {
			return eris.New("missing required env OPENAI_API_KEY for AI_PROVIDER=" + c.Provider)
		}
	default:
		return eris.Errorf("unknown AI_PROVIDER %q; use gemini or gpt", c.Provider)
	}
	if c.MaxAttempts < 1 {
		return eris.Errorf("AI_MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.RequestTimeout > 0 && c.CallTimeout > 0 && c.RequestTimeout < c.CallTimeout {
		return eris.Errorf("AI_REQUEST_TIMEOUT (%s) must not be shorter than AI_CALL_TIMEOUT (%s)", c.RequestTimeout, c.CallTimeout)
	}
	switch c.DBDriver {
	case "pgx", "sqlite3", "mysql":
	default:
		return eris.Errorf("unknown DB_DRIVER %q; use pgx, sqlite3 or mysql", c.DBDriver)
	}
	return nil
}

// TelegramToken returns the bot token, which only the bot requires.
func (c *Config) TelegramToken() (string, error) {
	if c.TelegramBotToken != "" {
		return c.TelegramBotToken, nil
	}
	return mustEnv("TELEGRAM_BOT_TOKEN")
}

var pgEnv = []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "PGHOST", "PGPORT"}

func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	if getEnv("DB_DRIVER", "pgx") != "pgx" {
		return ""
	}
	// Build from POSTGRES_* / PG* only when at least one of them is set; none means no database.
	set := false
	for _, k := range pgEnv {
		if getEnv(k, "") != "" {
			set = true
			break
		}
	}
	if !set {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "errbook"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "errbook"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
