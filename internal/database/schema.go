package database

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS system_settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    master_enabled INTEGER NOT NULL DEFAULT 0,
    poll_interval_seconds INTEGER NOT NULL DEFAULT 60,
    inter_announcement_pause_seconds INTEGER NOT NULL DEFAULT 10,
    ptt_gpio_pin INTEGER,
    ptt_active_level INTEGER NOT NULL DEFAULT 1,
    ptt_lead_ms INTEGER NOT NULL DEFAULT 500,
    ptt_tail_ms INTEGER NOT NULL DEFAULT 500,
    tx_timeout_seconds INTEGER NOT NULL DEFAULT 30
);

CREATE TABLE IF NOT EXISTS provider_credentials (
    provider_id TEXT PRIMARY KEY,
    credentials_json TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 0,
    provider_id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    station_name_cache TEXT,
    measurement_period_seconds INTEGER NOT NULL,
    offsets_seconds_json TEXT NOT NULL DEFAULT '[0]',
    min_interval_between_tx_seconds INTEGER NOT NULL DEFAULT 300,
    template_text TEXT NOT NULL,
    engine_id TEXT NOT NULL DEFAULT 'piper',
    voice_id TEXT NOT NULL,
    voice_params_json TEXT,
    lead_ms INTEGER NOT NULL DEFAULT 500,
    tail_ms INTEGER NOT NULL DEFAULT 500,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_provider ON channels (provider_id);

CREATE TABLE IF NOT EXISTS channel_runtime (
    channel_id INTEGER PRIMARY KEY REFERENCES channels(id) ON DELETE CASCADE,
    last_measurement_at TEXT,
    last_tx_at TEXT,
    next_tx_at TEXT,
    last_error TEXT
);

CREATE TABLE IF NOT EXISTS tx_ledger (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tx_id TEXT NOT NULL UNIQUE,
    channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,
    station_id TEXT NOT NULL,
    measurement_at TEXT NOT NULL,
    offset_seconds INTEGER NOT NULL,
    planned_at TEXT NOT NULL,
    sent_at TEXT,
    rendered_text TEXT NOT NULL,
    audio_path TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tx_ledger_status_planned ON tx_ledger (status, planned_at);
CREATE INDEX IF NOT EXISTS idx_tx_ledger_channel_status ON tx_ledger (channel_id, status);

CREATE TABLE IF NOT EXISTS audio_cache (
    cache_key TEXT PRIMARY KEY,
    audio_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    last_used_at TEXT NOT NULL,
    meta_json TEXT
);

INSERT OR IGNORE INTO system_settings (id) VALUES (1);
`

// InitSchema applies the full schema. Every statement is IF NOT EXISTS so a
// populated database is a no-op.
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.sql.ExecContext(ctx, schemaSQL)
	return err
}
