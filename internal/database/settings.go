package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SettingsRow is the singleton system configuration (row id=1).
type SettingsRow struct {
	MasterEnabled                 bool
	PollIntervalSeconds           int
	InterAnnouncementPauseSeconds int
	PTTGpioPin                    *int // nil selects the mock driver
	PTTActiveLevel                int  // 1=HIGH, 0=LOW
	PTTLeadMs                     int
	PTTTailMs                     int
	TxTimeoutSeconds              int
}

// Validate bounds-checks the mutable settings fields.
func (s *SettingsRow) Validate() error {
	if s.PollIntervalSeconds < 10 || s.PollIntervalSeconds > 600 {
		return fmt.Errorf("poll_interval_seconds must be within 10..600, got %d", s.PollIntervalSeconds)
	}
	if s.InterAnnouncementPauseSeconds < 0 || s.InterAnnouncementPauseSeconds > 60 {
		return fmt.Errorf("inter_announcement_pause_seconds must be within 0..60, got %d", s.InterAnnouncementPauseSeconds)
	}
	if s.PTTActiveLevel != 0 && s.PTTActiveLevel != 1 {
		return fmt.Errorf("ptt_active_level must be 0 or 1, got %d", s.PTTActiveLevel)
	}
	if s.PTTLeadMs < 0 || s.PTTTailMs < 0 {
		return fmt.Errorf("ptt lead/tail must be non-negative")
	}
	// The watchdog interval is fixed, not operator-tunable.
	if s.TxTimeoutSeconds != 30 {
		return fmt.Errorf("tx_timeout_seconds is fixed at 30")
	}
	return nil
}

func (db *DB) Settings(ctx context.Context) (*SettingsRow, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT master_enabled, poll_interval_seconds, inter_announcement_pause_seconds,
		       ptt_gpio_pin, ptt_active_level, ptt_lead_ms, ptt_tail_ms, tx_timeout_seconds
		FROM system_settings WHERE id = 1`)

	var s SettingsRow
	var pin sql.NullInt64
	err := row.Scan(&s.MasterEnabled, &s.PollIntervalSeconds, &s.InterAnnouncementPauseSeconds,
		&pin, &s.PTTActiveLevel, &s.PTTLeadMs, &s.PTTTailMs, &s.TxTimeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if pin.Valid {
		p := int(pin.Int64)
		s.PTTGpioPin = &p
	}
	return &s, nil
}

func (db *DB) UpdateSettings(ctx context.Context, s *SettingsRow) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var pin any
	if s.PTTGpioPin != nil {
		pin = *s.PTTGpioPin
	}
	_, err := db.sql.ExecContext(ctx, `
		UPDATE system_settings SET
			master_enabled = ?, poll_interval_seconds = ?, inter_announcement_pause_seconds = ?,
			ptt_gpio_pin = ?, ptt_active_level = ?, ptt_lead_ms = ?, ptt_tail_ms = ?, tx_timeout_seconds = ?
		WHERE id = 1`,
		s.MasterEnabled, s.PollIntervalSeconds, s.InterAnnouncementPauseSeconds,
		pin, s.PTTActiveLevel, s.PTTLeadMs, s.PTTTailMs, s.TxTimeoutSeconds)
	return err
}

// SetLastTick records the runner heartbeat, once per tick. The admin API
// uses it to tell a stopped runner from a quiet one.
func (db *DB) SetLastTick(ctx context.Context, at time.Time) error {
	_, err := db.sql.ExecContext(ctx,
		`UPDATE system_settings SET last_tick_at = ? WHERE id = 1`, fmtTime(at))
	return err
}

func (db *DB) LastTick(ctx context.Context) (*time.Time, error) {
	row := db.sql.QueryRowContext(ctx,
		`SELECT last_tick_at FROM system_settings WHERE id = 1`)
	var raw sql.NullString
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	return scanTimePtr(raw)
}
