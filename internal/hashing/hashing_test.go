package hashing

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestDigestStableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"length_scale": 1.1, "noise_scale": 0.6, "speaker": 0.0}
	b := map[string]any{"speaker": 0.0, "noise_scale": 0.6, "length_scale": 1.1}

	if Digest(a) != Digest(b) {
		t.Error("digest must not depend on map insertion order")
	}
}

func TestDigestArgumentBoundaries(t *testing.T) {
	// "ab","c" and "a","bc" must not collide: each argument is a distinct
	// JSON array element.
	if Digest("ab", "c") == Digest("a", "bc") {
		t.Error("argument boundaries must be preserved")
	}
}

func TestTxIDComponents(t *testing.T) {
	at := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	base := TxID(1, "ffvl", "158", at, "text", "piper", "fr_FR-siwis-medium", nil, 0)

	variants := []string{
		TxID(2, "ffvl", "158", at, "text", "piper", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "openwindmap", "158", at, "text", "piper", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "ffvl", "159", at, "text", "piper", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "ffvl", "158", at.Add(time.Second), "text", "piper", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "ffvl", "158", at, "other text", "piper", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "ffvl", "158", at, "text", "other", "fr_FR-siwis-medium", nil, 0),
		TxID(1, "ffvl", "158", at, "text", "piper", "fr_FR-tom-medium", nil, 0),
		TxID(1, "ffvl", "158", at, "text", "piper", "fr_FR-siwis-medium", map[string]any{"length_scale": 1.2}, 0),
		TxID(1, "ffvl", "158", at, "text", "piper", "fr_FR-siwis-medium", nil, 300),
	}
	seen := map[string]bool{base: true}
	for i, v := range variants {
		if seen[v] {
			t.Errorf("variant %d collided with an earlier tx-id", i)
		}
		seen[v] = true
	}

	if got := TxID(1, "ffvl", "158", at, "text", "piper", "fr_FR-siwis-medium", nil, 0); got != base {
		t.Error("identical inputs must produce identical tx-ids")
	}
	if len(base) != 64 {
		t.Errorf("tx-id length = %d, want 64 hex chars", len(base))
	}
}

func TestCacheKeyMapOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 5, rapid.ID[string]).Draw(t, "keys")
		params := make(map[string]any, len(keys))
		for _, k := range keys {
			params[k] = rapid.Float64Range(0, 10).Draw(t, "v_"+k)
		}
		// Rebuild in reverse insertion order.
		reversed := make(map[string]any, len(keys))
		for i := len(keys) - 1; i >= 0; i-- {
			reversed[keys[i]] = params[keys[i]]
		}
		k1 := CacheKey("piper", "1.3.0", "m", "v", params, "fr_FR", "bonjour")
		k2 := CacheKey("piper", "1.3.0", "m", "v", reversed, "fr_FR", "bonjour")
		if k1 != k2 {
			t.Fatalf("cache key depends on map insertion order")
		}
	})
}
