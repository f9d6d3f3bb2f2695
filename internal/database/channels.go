package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// ChannelRow is one configured channel: a station binding, a voice and an
// announcement template.
type ChannelRow struct {
	ID               int64
	Name             string
	Enabled          bool
	ProviderID       string
	StationID        string
	StationNameCache *string

	MeasurementPeriodSeconds    int
	OffsetsSeconds              []int
	MinIntervalBetweenTxSeconds int

	TemplateText string
	EngineID     string
	VoiceID      string
	VoiceParams  map[string]any

	LeadMs int
	TailMs int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the channel invariants: positive measurement period,
// non-negative minimum interval, offsets non-negative and duplicate-free.
func (c *ChannelRow) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.ProviderID == "" || c.StationID == "" {
		return fmt.Errorf("provider_id and station_id are required")
	}
	if c.MeasurementPeriodSeconds <= 0 {
		return fmt.Errorf("measurement_period_seconds must be > 0")
	}
	if c.MinIntervalBetweenTxSeconds < 0 {
		return fmt.Errorf("min_interval_between_tx_seconds must be >= 0")
	}
	if len(c.OffsetsSeconds) == 0 {
		return fmt.Errorf("at least one offset is required")
	}
	seen := make(map[int]bool, len(c.OffsetsSeconds))
	for _, o := range c.OffsetsSeconds {
		if o < 0 {
			return fmt.Errorf("offsets must be >= 0, got %d", o)
		}
		if seen[o] {
			return fmt.Errorf("duplicate offset %d", o)
		}
		seen[o] = true
	}
	if c.TemplateText == "" {
		return fmt.Errorf("template_text is required")
	}
	if c.VoiceID == "" {
		return fmt.Errorf("voice_id is required")
	}
	return nil
}

const channelCols = `id, name, enabled, provider_id, station_id, station_name_cache,
	measurement_period_seconds, offsets_seconds_json, min_interval_between_tx_seconds,
	template_text, engine_id, voice_id, voice_params_json, lead_ms, tail_ms,
	created_at, updated_at`

func scanChannel(row interface{ Scan(...any) error }) (*ChannelRow, error) {
	var c ChannelRow
	var nameCache, offsetsJSON, paramsJSON sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &c.Enabled, &c.ProviderID, &c.StationID, &nameCache,
		&c.MeasurementPeriodSeconds, &offsetsJSON, &c.MinIntervalBetweenTxSeconds,
		&c.TemplateText, &c.EngineID, &c.VoiceID, &paramsJSON, &c.LeadMs, &c.TailMs,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if nameCache.Valid {
		c.StationNameCache = &nameCache.String
	}
	if offsetsJSON.Valid && offsetsJSON.String != "" {
		if err := json.Unmarshal([]byte(offsetsJSON.String), &c.OffsetsSeconds); err != nil {
			return nil, fmt.Errorf("channel %d offsets: %w", c.ID, err)
		}
	}
	if len(c.OffsetsSeconds) == 0 {
		c.OffsetsSeconds = []int{0}
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &c.VoiceParams); err != nil {
			return nil, fmt.Errorf("channel %d voice params: %w", c.ID, err)
		}
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) ChannelByID(ctx context.Context, id int64) (*ChannelRow, error) {
	c, err := scanChannel(db.sql.QueryRowContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (db *DB) ListChannels(ctx context.Context) ([]*ChannelRow, error) {
	return db.queryChannels(ctx, `SELECT `+channelCols+` FROM channels ORDER BY id`)
}

// EnabledChannels returns the channels the runner polls this tick. Read
// fresh every iteration: the admin API mutates channels concurrently.
func (db *DB) EnabledChannels(ctx context.Context) ([]*ChannelRow, error) {
	return db.queryChannels(ctx, `SELECT `+channelCols+` FROM channels WHERE enabled = 1 ORDER BY id`)
}

func (db *DB) queryChannels(ctx context.Context, query string, args ...any) ([]*ChannelRow, error) {
	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChannelRow
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) InsertChannel(ctx context.Context, c *ChannelRow, now time.Time) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	offsets, _ := json.Marshal(c.OffsetsSeconds)
	var params any
	if c.VoiceParams != nil {
		b, _ := json.Marshal(c.VoiceParams)
		params = string(b)
	}
	var nameCache any
	if c.StationNameCache != nil {
		nameCache = *c.StationNameCache
	}
	res, err := db.sql.ExecContext(ctx, `
		INSERT INTO channels (name, enabled, provider_id, station_id, station_name_cache,
			measurement_period_seconds, offsets_seconds_json, min_interval_between_tx_seconds,
			template_text, engine_id, voice_id, voice_params_json, lead_ms, tail_ms,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Enabled, c.ProviderID, c.StationID, nameCache,
		c.MeasurementPeriodSeconds, string(offsets), c.MinIntervalBetweenTxSeconds,
		c.TemplateText, c.EngineID, c.VoiceID, params, c.LeadMs, c.TailMs,
		fmtTime(now), fmtTime(now))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	// Each channel owns exactly one runtime row.
	_, err = db.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_runtime (channel_id) VALUES (?)`, id)
	return id, err
}

func (db *DB) UpdateChannel(ctx context.Context, c *ChannelRow, now time.Time) error {
	if err := c.Validate(); err != nil {
		return err
	}
	offsets, _ := json.Marshal(c.OffsetsSeconds)
	var params any
	if c.VoiceParams != nil {
		b, _ := json.Marshal(c.VoiceParams)
		params = string(b)
	}
	var nameCache any
	if c.StationNameCache != nil {
		nameCache = *c.StationNameCache
	}
	res, err := db.sql.ExecContext(ctx, `
		UPDATE channels SET name = ?, enabled = ?, provider_id = ?, station_id = ?,
			station_name_cache = ?, measurement_period_seconds = ?, offsets_seconds_json = ?,
			min_interval_between_tx_seconds = ?, template_text = ?, engine_id = ?,
			voice_id = ?, voice_params_json = ?, lead_ms = ?, tail_ms = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Enabled, c.ProviderID, c.StationID, nameCache,
		c.MeasurementPeriodSeconds, string(offsets), c.MinIntervalBetweenTxSeconds,
		c.TemplateText, c.EngineID, c.VoiceID, params, c.LeadMs, c.TailMs,
		fmtTime(now), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChannel removes the channel; the runtime row and ledger rows cascade.
func (db *DB) DeleteChannel(ctx context.Context, id int64) error {
	res, err := db.sql.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
