package tts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/f4lix/vhf-balise/internal/database"
)

// fakeEngine writes a fixed payload and counts synthesis runs.
type fakeEngine struct {
	mu    sync.Mutex
	runs  int
	fail  bool
	model string
}

func (f *fakeEngine) ID() string                 { return "fake" }
func (f *fakeEngine) Version() string            { return "1.0" }
func (f *fakeEngine) Voices() []Voice            { return []Voice{{ID: "v1", EngineID: "fake"}} }
func (f *fakeEngine) ModelVersion(string) string { return f.model }

func (f *fakeEngine) Synthesize(_ context.Context, text, voiceID, outputPath string, _ map[string]any) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.fail {
		return os.ErrPermission
	}
	return os.WriteFile(outputPath, []byte("RIFF"+text), 0o644)
}

func (f *fakeEngine) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func newTestCache(t *testing.T) (*Cache, *fakeEngine) {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := &fakeEngine{model: "m1"}
	return NewCache(db, eng, t.TempDir(), "fr_FR", zerolog.Nop()), eng
}

func TestCacheSynthesizesOncePerKey(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	p1, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.NoError(t, err)
	p2, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.NoError(t, err)

	if p1 != p2 {
		t.Errorf("same text must return the same path: %q vs %q", p1, p2)
	}
	if got := eng.runCount(); got != 1 {
		t.Errorf("synthesis runs = %d, want 1", got)
	}
}

func TestCacheKeyChangesWithText(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	p1, err := c.GetOrSynthesize(ctx, "vent dix", "v1", nil)
	require.NoError(t, err)
	p2, err := c.GetOrSynthesize(ctx, "vent vingt", "v1", nil)
	require.NoError(t, err)

	if p1 == p2 {
		t.Error("different texts must map to different cache files")
	}
	if got := eng.runCount(); got != 2 {
		t.Errorf("synthesis runs = %d, want 2", got)
	}
}

func TestCacheKeyChangesWithModelVersion(t *testing.T) {
	c, eng := newTestCache(t)

	k1 := c.Key("bonjour", "v1", nil)
	eng.model = "m2"
	k2 := c.Key("bonjour", "v1", nil)
	if k1 == k2 {
		t.Error("swapping the model file must change the cache key")
	}
}

func TestCacheResynthesizesWhenFileVanishes(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	p1, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(p1))

	p2, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.NoError(t, err)

	if _, err := os.Stat(p2); err != nil {
		t.Errorf("resynthesized file missing: %v", err)
	}
	if got := eng.runCount(); got != 2 {
		t.Errorf("synthesis runs = %d, want 2 after file loss", got)
	}
}

func TestCacheConcurrentSameKey(t *testing.T) {
	c, eng := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil); err != nil {
				t.Errorf("GetOrSynthesize: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := eng.runCount(); got != 1 {
		t.Errorf("synthesis runs = %d, want 1 under concurrency", got)
	}
}

func TestCacheSynthesisFailureNotIndexed(t *testing.T) {
	c, eng := newTestCache(t)
	eng.fail = true
	ctx := context.Background()

	_, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.Error(t, err)

	eng.fail = false
	p, err := c.GetOrSynthesize(ctx, "bonjour", "v1", nil)
	require.NoError(t, err)
	if _, err := os.Stat(p); err != nil {
		t.Errorf("retry after failure must produce audio: %v", err)
	}
}
