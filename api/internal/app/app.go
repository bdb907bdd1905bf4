// Package app assembles the services both binaries share from a Config.
package app

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/ai/gemini"
	"errbook/api/internal/ai/openai"
	"errbook/api/internal/ai/prompt"
	"errbook/api/internal/config"
	"errbook/api/internal/httpserver"
	"errbook/api/internal/question"
	"errbook/api/internal/store"
)

type App struct {
	Config    *config.Config
	Vocab     *question.Vocabulary
	Validator *question.Validator
	Engines   *ai.Engines

	DB    *sqlx.DB // nil when no database is configured
	Items *store.ItemRepo
	Cache *store.CacheRepo
}

// New loads the vocabulary and prompts, opens the database when one is configured
// and registers one service per provider that has a key.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	vocab, err := question.LoadVocabulary(cfg.VocabFile)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.New(vocab, cfg.PromptDir)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Vocab: vocab, Validator: question.NewValidator(vocab)}

	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.DB = db
		a.Items = store.NewItemRepo(db)
		a.Cache = store.NewCacheRepo(db, cfg.CacheTTL)
		if cfg.CacheTTL > 0 {
			if n, err := a.Cache.PurgeOlderThan(ctx, cfg.CacheTTL); err != nil {
				zap.L().Warn("purge analysis cache", zap.Error(err))
			} else if n > 0 {
				zap.L().Info("purged stale analyses", zap.Int64("rows", n))
			}
		}
		if err := SeedTags(ctx, a.Items.Tags, vocab); err != nil {
			zap.L().Warn("seed system tags", zap.Error(err))
		}
		zap.L().Info("database ready", zap.String("driver", cfg.DBDriver), zap.String("dsn", store.SafeDSNSummary(cfg.DatabaseURL)))
	} else {
		zap.L().Warn("no database configured; items will not be saved")
	}

	opts := []ai.Option{
		ai.WithRetryPolicy(ai.RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay}),
		ai.WithCallTimeout(cfg.CallTimeout),
	}
	if a.Cache != nil {
		opts = append(opts, ai.WithCache(a.Cache))
	}

	var services []*ai.Service
	if cfg.GeminiAPIKey != "" {
		services = append(services, ai.NewService(
			gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, prompts, a.Validator), opts...))
	}
	if cfg.OpenAIAPIKey != "" {
		services = append(services, ai.NewService(
			openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, prompts, a.Validator), opts...))
	}
	a.Engines = ai.NewEngines(cfg.Provider, services...)
	if _, err := a.Engines.Default(); err != nil {
		a.Close()
		return nil, eris.Wrap(err, "default engine")
	}
	return a, nil
}

// SeedTags makes the vocabulary tag hints and the grade nodes available as system tags.
func SeedTags(ctx context.Context, tags *store.TagRepo, vocab *question.Vocabulary) error {
	for _, s := range vocab.Subjects {
		names := vocab.TagHints(s.Code)
		if len(names) == 0 {
			continue
		}
		if _, err := tags.EnsureSystem(ctx, store.SubjectKey(s.Code), "", names); err != nil {
			return err
		}
	}
	for _, key := range []string{"math", "english"} {
		if _, err := tags.EnsureSystem(ctx, key, "", store.GradeNodes()); err != nil {
			return err
		}
	}
	return nil
}

// Pinger returns the database for health checks, or nil without one.
func (a *App) Pinger() httpserver.Pinger {
	if a.DB == nil {
		return nil
	}
	return a.DB
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
