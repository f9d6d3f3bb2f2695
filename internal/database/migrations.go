package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns 1 if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply on top of the
// base schema. Each must be idempotent.
var migrations = []migration{
	{
		name:  "add channels.station_name_cache",
		sql:   `ALTER TABLE channels ADD COLUMN station_name_cache TEXT`,
		check: `SELECT COUNT(*) > 0 FROM pragma_table_info('channels') WHERE name = 'station_name_cache'`,
	},
	{
		name:  "add tx_ledger created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_tx_ledger_created ON tx_ledger (created_at DESC)`,
		check: `SELECT COUNT(*) > 0 FROM pragma_index_list('tx_ledger') WHERE name = 'idx_tx_ledger_created'`,
	},
	{
		name:  "add system_settings.last_tick_at",
		sql:   `ALTER TABLE system_settings ADD COLUMN last_tick_at TEXT`,
		check: `SELECT COUNT(*) > 0 FROM pragma_table_info('system_settings') WHERE name = 'last_tick_at'`,
	},
}

// Migrate runs all pending schema migrations. A failed apply is fatal: the
// store's queries depend on the resulting columns.
func (db *DB) Migrate(ctx context.Context) error {
	applied := 0
	for _, m := range migrations {
		if m.check != "" {
			var done bool
			if err := db.sql.QueryRowContext(ctx, m.check).Scan(&done); err == nil && done {
				continue
			}
		}
		if _, err := db.sql.ExecContext(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, err: err}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	if applied > 0 {
		db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	}
	return nil
}

// MigrationError is returned when a migration fails.
type MigrationError struct {
	failed migration
	err    error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v", e.failed.name, e.err)
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.err }
