package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// AudioCacheRow indexes one synthesized WAV in the content-addressed cache.
type AudioCacheRow struct {
	CacheKey   string
	AudioPath  string
	SizeBytes  int64
	CreatedAt  time.Time
	LastUsedAt time.Time
	Meta       map[string]any
}

func (db *DB) AudioCacheEntry(ctx context.Context, key string) (*AudioCacheRow, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT cache_key, audio_path, size_bytes, created_at, last_used_at, meta_json
		FROM audio_cache WHERE cache_key = ?`, key)

	var r AudioCacheRow
	var createdAt, lastUsedAt string
	var metaJSON sql.NullString
	err := row.Scan(&r.CacheKey, &r.AudioPath, &r.SizeBytes, &createdAt, &lastUsedAt, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.LastUsedAt, err = parseTime(lastUsedAt); err != nil {
		return nil, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &r.Meta)
	}
	return &r, nil
}

func (db *DB) InsertAudioCacheEntry(ctx context.Context, r *AudioCacheRow) error {
	var meta any
	if r.Meta != nil {
		b, _ := json.Marshal(r.Meta)
		meta = string(b)
	}
	_, err := db.sql.ExecContext(ctx, `
		INSERT OR REPLACE INTO audio_cache
			(cache_key, audio_path, size_bytes, created_at, last_used_at, meta_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.CacheKey, r.AudioPath, r.SizeBytes, fmtTime(r.CreatedAt), fmtTime(r.LastUsedAt), meta)
	return err
}

func (db *DB) TouchAudioCacheEntry(ctx context.Context, key string, usedAt time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE audio_cache SET last_used_at = ? WHERE cache_key = ?`, fmtTime(usedAt), key)
	return err
}

// DeleteAudioCacheEntry drops an index row whose file disappeared.
func (db *DB) DeleteAudioCacheEntry(ctx context.Context, key string) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM audio_cache WHERE cache_key = ?`, key)
	return err
}
