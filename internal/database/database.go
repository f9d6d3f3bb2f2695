// Package database is the persistent store shared by the runner and the
// admin API: channel configuration, runtime state, system settings, the
// transmission ledger, the audio-cache index and provider credentials.
// It is a single sqlite file under the data root.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the sqlite store and applies the schema
// and pending migrations.
func Open(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		url.PathEscape(path))

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The runner is the single writer; one connection avoids SQLITE_BUSY
	// churn between its own transactions.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db := &DB{sql: conn, log: log}
	if err := db.InitSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.sql.PingContext(ctx)
}

func (db *DB) Close() {
	db.log.Info().Msg("closing database")
	db.sql.Close()
}

// timeFormat is the naive-UTC layout used for every stored instant.
const timeFormat = "2006-01-02 15:04:05"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeFormat, s, time.UTC)
}

func scanTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
