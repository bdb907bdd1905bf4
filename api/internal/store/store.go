package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rotisserie/eris"
)

var ErrNotFound = sql.ErrNoRows

// Open connects with one of pgx, sqlite3 or mysql and checks the connection.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, eris.New("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars")
	}
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, eris.Wrap(err, "parse mysql dsn")
		}
		// timestamps must scan into time.Time
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", driver)
	}
	if driver == "sqlite3" {
		// one writer; avoids "database is locked"
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "ping %s", SafeDSNSummary(dsn))
	}
	return db, nil
}

var schema = []string{
	`create table if not exists knowledge_tags (
  id varchar(36) primary key,
  name varchar(255) not null,
  subject varchar(32) not null,
  is_system boolean not null,
  owner_id varchar(64) not null,
  parent_id varchar(36) not null,
  created_at timestamp not null
)`,
	`create table if not exists error_items (
  id varchar(36) primary key,
  owner_id varchar(64) not null,
  subject varchar(32) not null,
  question_text text not null,
  answer_text text not null,
  analysis text not null,
  knowledge_points text not null,
  original_image_url text not null,
  grade_semester varchar(64) not null,
  paper_level varchar(32) not null,
  mastery_level integer not null,
  created_at timestamp not null,
  updated_at timestamp not null
)`,
	`create table if not exists error_item_tags (
  item_id varchar(36) not null,
  tag_id varchar(36) not null,
  primary key (item_id, tag_id)
)`,
	`create table if not exists analysis_cache (
  cache_key varchar(255) primary key,
  record_json text not null,
  created_at timestamp not null
)`,
}

// mysql has no "create index if not exists"
var indexes = []string{
	`create index if not exists idx_error_items_owner_created on error_items (owner_id, created_at)`,
	`create index if not exists idx_knowledge_tags_name on knowledge_tags (name)`,
}

// Migrate creates the tables if they are missing. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	stmts := schema
	if db.DriverName() != "mysql" {
		stmts = append(append([]string{}, schema...), indexes...)
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return eris.Wrapf(err, "migrate: %s", firstLine(q))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn: opaque"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
