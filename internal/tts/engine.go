// Package tts synthesizes announcement audio and caches it by content.
package tts

import "context"

// Voice describes one installed voice model.
type Voice struct {
	ID        string   `json:"voice_id"`
	Label     string   `json:"label"`
	Languages []string `json:"languages"`
	EngineID  string   `json:"engine_id"`
}

// Engine is the synthesis backend. Synthesize blocks; callers run it off
// the scheduling goroutine.
type Engine interface {
	ID() string
	Version() string
	Voices() []Voice

	// ModelVersion identifies the installed model file for a voice. It
	// feeds the cache key so a swapped model file invalidates old audio.
	ModelVersion(voiceID string) string

	// Synthesize writes mono PCM WAV to outputPath.
	Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error
}
