package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/hashing"
	"github.com/f4lix/vhf-balise/internal/metrics"
)

// Cache is the content-addressed audio cache. One WAV per cache key; the
// index lives in the database, the bytes on disk. Entries are never evicted
// here; cleanup is an external concern.
type Cache struct {
	db     *database.DB
	engine Engine
	dir    string
	locale string
	log    zerolog.Logger

	// Collapses concurrent synthesis of the same key into one run.
	group singleflight.Group
}

func NewCache(db *database.DB, engine Engine, dir, locale string, log zerolog.Logger) *Cache {
	return &Cache{
		db:     db,
		engine: engine,
		dir:    dir,
		locale: locale,
		log:    log.With().Str("component", "audio_cache").Logger(),
	}
}

// Key computes the cache key for a rendered text under the current engine
// and model versions.
func (c *Cache) Key(text, voiceID string, params map[string]any) string {
	return hashing.CacheKey(
		c.engine.ID(), c.engine.Version(), c.engine.ModelVersion(voiceID),
		voiceID, params, c.locale, text)
}

// GetOrSynthesize returns the path of a WAV for text, synthesizing at most
// once per key. An index row whose file vanished is dropped and replaced.
func (c *Cache) GetOrSynthesize(ctx context.Context, text, voiceID string, params map[string]any) (string, error) {
	key := c.Key(text, voiceID, params)

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.lookupOrSynthesize(ctx, key, text, voiceID, params)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) lookupOrSynthesize(ctx context.Context, key, text, voiceID string, params map[string]any) (string, error) {
	now := time.Now().UTC()

	entry, err := c.db.AudioCacheEntry(ctx, key)
	switch {
	case err == nil:
		if _, statErr := os.Stat(entry.AudioPath); statErr == nil {
			metrics.CacheHits.Inc()
			if err := c.db.TouchAudioCacheEntry(ctx, key, now); err != nil {
				c.log.Warn().Err(err).Str("key", key).Msg("cannot bump last_used_at")
			}
			return entry.AudioPath, nil
		}
		// Stale index row; the file was removed behind our back.
		c.log.Warn().Str("key", key).Str("path", entry.AudioPath).Msg("cache file missing, resynthesizing")
		if err := c.db.DeleteAudioCacheEntry(ctx, key); err != nil {
			return "", fmt.Errorf("drop stale cache entry %s: %w", key, err)
		}
	case errors.Is(err, database.ErrNotFound):
	default:
		return "", fmt.Errorf("cache lookup %s: %w", key, err)
	}

	metrics.CacheMisses.Inc()
	path := filepath.Join(c.dir, key+".wav")
	start := time.Now()
	if err := c.engine.Synthesize(ctx, text, voiceID, path, params); err != nil {
		metrics.Syntheses.WithLabelValues("error").Inc()
		return "", fmt.Errorf("synthesize %s: %w", key, err)
	}
	metrics.Syntheses.WithLabelValues("ok").Inc()
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())

	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat synthesized audio: %w", err)
	}

	row := &database.AudioCacheRow{
		CacheKey:   key,
		AudioPath:  path,
		SizeBytes:  fi.Size(),
		CreatedAt:  now,
		LastUsedAt: now,
		Meta: map[string]any{
			"engine_id":     c.engine.ID(),
			"voice_id":      voiceID,
			"model_version": c.engine.ModelVersion(voiceID),
		},
	}
	if err := c.db.InsertAudioCacheEntry(ctx, row); err != nil {
		return "", fmt.Errorf("index cache entry %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Str("voice", voiceID).Msg("audio synthesized")
	return path, nil
}
