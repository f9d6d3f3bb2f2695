package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Ledger statuses. A row leaves PENDING exactly once.
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
	StatusAborted = "ABORTED"
)

// Ledger modes.
const (
	ModeScheduled  = "SCHEDULED"
	ModeManualTest = "MANUAL_TEST"
)

// TxRow is one planned announcement in the transmission ledger.
type TxRow struct {
	ID            int64
	TxID          string // content hash, unique
	ChannelID     int64
	Mode          string
	Status        string
	StationID     string
	MeasurementAt time.Time
	OffsetSeconds int
	PlannedAt     time.Time
	SentAt        *time.Time
	RenderedText  string
	AudioPath     *string
	ErrorMessage  *string
	CreatedAt     time.Time
}

const txCols = `id, tx_id, channel_id, mode, status, station_id, measurement_at,
	offset_seconds, planned_at, sent_at, rendered_text, audio_path, error_message, created_at`

func scanTx(row interface{ Scan(...any) error }) (*TxRow, error) {
	var r TxRow
	var measurementAt, plannedAt, createdAt string
	var sentAt, audioPath, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.TxID, &r.ChannelID, &r.Mode, &r.Status, &r.StationID,
		&measurementAt, &r.OffsetSeconds, &plannedAt, &sentAt, &r.RenderedText,
		&audioPath, &errMsg, &createdAt)
	if err != nil {
		return nil, err
	}
	if r.MeasurementAt, err = parseTime(measurementAt); err != nil {
		return nil, err
	}
	if r.PlannedAt, err = parseTime(plannedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.SentAt, err = scanTimePtr(sentAt); err != nil {
		return nil, err
	}
	if audioPath.Valid {
		r.AudioPath = &audioPath.String
	}
	if errMsg.Valid {
		r.ErrorMessage = &errMsg.String
	}
	return &r, nil
}

// InsertTx journals a planned announcement. tx_id is UNIQUE: inserting a
// duplicate is not an error, it reports inserted=false so planning stays
// idempotent.
func (db *DB) InsertTx(ctx context.Context, r *TxRow, now time.Time) (inserted bool, err error) {
	var audioPath any
	if r.AudioPath != nil {
		audioPath = *r.AudioPath
	}
	res, err := db.sql.ExecContext(ctx, `
		INSERT OR IGNORE INTO tx_ledger
			(tx_id, channel_id, mode, status, station_id, measurement_at,
			 offset_seconds, planned_at, rendered_text, audio_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TxID, r.ChannelID, r.Mode, r.Status, r.StationID, fmtTime(r.MeasurementAt),
		r.OffsetSeconds, fmtTime(r.PlannedAt), r.RenderedText, audioPath, fmtTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	r.ID, _ = res.LastInsertId()
	return true, nil
}

// MarkSent performs the pre-commit of intent: the row is recorded SENT
// before the radio keys up. A later MarkFailed overrides it.
func (db *DB) MarkSent(ctx context.Context, txID string, sentAt time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET status = ?, sent_at = ? WHERE tx_id = ?`,
		StatusSent, fmtTime(sentAt), txID)
	return err
}

func (db *DB) MarkFailed(ctx context.Context, txID, message string) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET status = ?, error_message = ? WHERE tx_id = ?`,
		StatusFailed, message, txID)
	return err
}

// MarkAborted moves a PENDING row to ABORTED. Rows already out of PENDING
// are left untouched.
func (db *DB) MarkAborted(ctx context.Context, txID, message string) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET status = ?, error_message = ?
		WHERE tx_id = ? AND status = ?`,
		StatusAborted, message, txID, StatusPending)
	return err
}

// SetTxAudioPath persists the resolved audio artifact for a ledger row.
func (db *DB) SetTxAudioPath(ctx context.Context, txID, audioPath string) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET audio_path = ? WHERE tx_id = ?`, audioPath, txID)
	return err
}

// AbortPendingForChannel cancels every PENDING row of one channel,
// regardless of planned time. Used by the cancel-on-new policy.
func (db *DB) AbortPendingForChannel(ctx context.Context, channelID int64, reason string) (int64, error) {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET status = ?, error_message = ?
		WHERE channel_id = ? AND status = ?`,
		StatusAborted, reason, channelID, StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AbortStalePending cancels PENDING rows planned before cutoff. Runs once at
// startup so a long outage does not replay an hour of backlog on air.
func (db *DB) AbortStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE tx_ledger SET status = ?, error_message = ?
		WHERE status = ? AND planned_at < ?`,
		StatusAborted, reason, StatusPending, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DuePending returns every PENDING row whose planned time has arrived, in
// chronological order with insertion order breaking ties.
func (db *DB) DuePending(ctx context.Context, now time.Time) ([]*TxRow, error) {
	return db.queryTx(ctx, `
		SELECT `+txCols+` FROM tx_ledger
		WHERE status = ? AND planned_at <= ?
		ORDER BY planned_at ASC, id ASC`,
		StatusPending, fmtTime(now))
}

// EarliestPending returns the earliest remaining PENDING planned time for a
// channel, or nil.
func (db *DB) EarliestPending(ctx context.Context, channelID int64) (*time.Time, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT planned_at FROM tx_ledger
		WHERE channel_id = ? AND status = ?
		ORDER BY planned_at ASC LIMIT 1`,
		channelID, StatusPending)

	var plannedAt string
	err := row.Scan(&plannedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := parseTime(plannedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) TxByID(ctx context.Context, txID string) (*TxRow, error) {
	r, err := scanTx(db.sql.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM tx_ledger WHERE tx_id = ?`, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// TxHistoryFilter narrows a ledger history query.
type TxHistoryFilter struct {
	ChannelID *int64
	Status    string
	Limit     int
	Offset    int
}

// TxHistory lists ledger rows newest-first for the admin API.
func (db *DB) TxHistory(ctx context.Context, f TxHistoryFilter) ([]*TxRow, error) {
	var where []string
	var args []any
	if f.ChannelID != nil {
		where = append(where, "channel_id = ?")
		args = append(args, *f.ChannelID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := `SELECT ` + txCols + ` FROM tx_ledger`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	return db.queryTx(ctx, q, args...)
}

func (db *DB) queryTx(ctx context.Context, query string, args ...any) ([]*TxRow, error) {
	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TxRow
	for rows.Next() {
		r, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
