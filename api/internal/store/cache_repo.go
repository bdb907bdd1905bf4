package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"errbook/api/internal/question"
)

// CacheRepo keeps finished analyses keyed by image hash, engine, model and options.
type CacheRepo struct {
	DB     *sqlx.DB
	MaxAge time.Duration // 0 keeps entries forever

	now func() time.Time
}

func NewCacheRepo(db *sqlx.DB, maxAge time.Duration) *CacheRepo {
	return &CacheRepo{DB: db, MaxAge: maxAge, now: func() time.Time { return time.Now().UTC() }}
}

// Lookup returns the cached record for key. Stale or unreadable entries count as misses.
func (r *CacheRepo) Lookup(ctx context.Context, key string) (question.Record, bool, error) {
	var row struct {
		JSON      string    `db:"record_json"`
		CreatedAt time.Time `db:"created_at"`
	}
	q := r.DB.Rebind(`select record_json, created_at from analysis_cache where cache_key = ?`)
	if err := r.DB.GetContext(ctx, &row, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return question.Record{}, false, nil
		}
		return question.Record{}, false, eris.Wrap(err, "lookup analysis")
	}
	if r.MaxAge > 0 && r.now().Sub(row.CreatedAt) > r.MaxAge {
		return question.Record{}, false, nil
	}
	var rec question.Record
	if err := json.Unmarshal([]byte(row.JSON), &rec); err != nil {
		zap.L().Warn("broken analysis cache entry", zap.String("key", key), zap.Error(err))
		return question.Record{}, false, nil
	}
	return rec, true, nil
}

// Save stores rec under key, replacing any previous entry.
func (r *CacheRepo) Save(ctx context.Context, key string, rec question.Record) error {
	js, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "encode analysis")
	}
	q := `insert into analysis_cache (cache_key, record_json, created_at) values (?, ?, ?)
on conflict (cache_key) do update set record_json = excluded.record_json, created_at = excluded.created_at`
	if r.DB.DriverName() == "mysql" {
		q = `insert into analysis_cache (cache_key, record_json, created_at) values (?, ?, ?)
on duplicate key update record_json = values(record_json), created_at = values(created_at)`
	}
	if _, err := r.DB.ExecContext(ctx, r.DB.Rebind(q), key, string(js), r.now()); err != nil {
		return eris.Wrap(err, "save analysis")
	}
	return nil
}

// PurgeOlderThan drops old entries so the cache does not grow without bound.
func (r *CacheRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, eris.New("olderThan must be > 0")
	}
	cutoff := r.now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`delete from analysis_cache where created_at < ?`), cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "purge analysis cache")
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
