// Package hashing computes the content hashes that make planning and
// caching idempotent: the tx-id of a planned announcement and the key of a
// synthesized audio file.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ISOFormat is the canonical instant representation inside hashes. Naive
// UTC, second precision.
const ISOFormat = "2006-01-02T15:04:05"

// Digest hashes the canonical JSON of its arguments. json.Marshal sorts map
// keys, so the digest is stable across map insertion order.
func Digest(args ...any) string {
	b, err := json.Marshal(args)
	if err != nil {
		// Only unmarshalable types reach this; hash inputs are plain data.
		b = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TxID identifies one planned announcement. Two plans collide exactly when
// every component that shapes the on-air result is identical.
func TxID(channelID int64, providerID, stationID string, measurementAt time.Time,
	renderedText, engineID, voiceID string, voiceParams map[string]any, offsetSeconds int) string {
	return Digest(
		channelID,
		providerID,
		stationID,
		measurementAt.Format(ISOFormat),
		renderedText,
		engineID,
		voiceID,
		voiceParams,
		offsetSeconds,
	)
}

// CacheKey identifies one synthesized audio artifact. Any change to the
// engine, model, voice, parameters, locale or text yields a new key.
func CacheKey(engineID, engineVersion, modelVersion, voiceID string,
	voiceParams map[string]any, locale, renderedText string) string {
	return Digest(
		engineID,
		engineVersion,
		modelVersion,
		voiceID,
		voiceParams,
		locale,
		renderedText,
	)
}
