package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RuntimeRow is the per-channel last-seen/next-planned state.
type RuntimeRow struct {
	ChannelID         int64
	LastMeasurementAt *time.Time
	LastTxAt          *time.Time
	NextTxAt          *time.Time
	LastError         *string
}

func (db *DB) Runtime(ctx context.Context, channelID int64) (*RuntimeRow, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT channel_id, last_measurement_at, last_tx_at, next_tx_at, last_error
		FROM channel_runtime WHERE channel_id = ?`, channelID)

	var r RuntimeRow
	var lastMeas, lastTx, nextTx, lastErr sql.NullString
	err := row.Scan(&r.ChannelID, &lastMeas, &lastTx, &nextTx, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		// Channels created before the runtime row existed; self-heal.
		if _, err := db.sql.ExecContext(ctx,
			`INSERT OR IGNORE INTO channel_runtime (channel_id) VALUES (?)`, channelID); err != nil {
			return nil, err
		}
		return &RuntimeRow{ChannelID: channelID}, nil
	}
	if err != nil {
		return nil, err
	}
	if r.LastMeasurementAt, err = scanTimePtr(lastMeas); err != nil {
		return nil, err
	}
	if r.LastTxAt, err = scanTimePtr(lastTx); err != nil {
		return nil, err
	}
	if r.NextTxAt, err = scanTimePtr(nextTx); err != nil {
		return nil, err
	}
	if lastErr.Valid {
		r.LastError = &lastErr.String
	}
	return &r, nil
}

// SetLastMeasurement records a newly adopted measurement and clears the
// channel's last error.
func (db *DB) SetLastMeasurement(ctx context.Context, channelID int64, at time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE channel_runtime SET last_measurement_at = ?, last_error = NULL
		WHERE channel_id = ?`, fmtTime(at), channelID)
	return err
}

func (db *DB) SetLastError(ctx context.Context, channelID int64, msg string) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE channel_runtime SET last_error = ? WHERE channel_id = ?`, msg, channelID)
	return err
}

func (db *DB) SetLastTx(ctx context.Context, channelID int64, at time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE channel_runtime SET last_tx_at = ? WHERE channel_id = ?`, fmtTime(at), channelID)
	return err
}

// SetNextTx records the earliest remaining planned transmission, or clears
// it when nil.
func (db *DB) SetNextTx(ctx context.Context, channelID int64, at *time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE channel_runtime SET next_tx_at = ? WHERE channel_id = ?`, fmtTimePtr(at), channelID)
	return err
}
