package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/f4lix/vhf-balise/internal/clock"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/runner"
)

// Simulated reading used when a station has no live data. Same values as
// the timeline forecast, so the operator hears a consistent sample.
func simulatedMeasurement(now time.Time) *provider.Measurement {
	min := 15.0
	dir := 270.0
	return &provider.Measurement{
		MeasurementAt:    now,
		WindAvgKmh:       20.0,
		WindMaxKmh:       28.0,
		WindMinKmh:       &min,
		WindDirectionDeg: &dir,
	}
}

type previewResponse struct {
	RenderedText string `json:"rendered_text"`
	AudioPath    string `json:"audio_path"`
	CacheKey     string `json:"cache_key"`
	Simulated    bool   `json:"simulated"`
}

// previewChannel renders and synthesizes exactly what the runner would air
// for this channel, through the same render call and the same audio cache.
// Nothing is queued and the PTT line is never touched.
func (h *handlers) previewChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	ch, err := h.db.ChannelByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "channel %d not found", id)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load channel: %v", err)
		return
	}

	now := clock.Naive(time.Now().UTC())

	var m *provider.Measurement
	simulated := false
	if p, err := h.providers.Get(ch.ProviderID); err == nil {
		if fetched, err := p.FetchMeasurement(ctx, ch.StationID); err == nil && fetched != nil {
			m = fetched
		}
	}
	if m == nil {
		m = simulatedMeasurement(now)
		simulated = true
	}

	text := runner.RenderAnnouncement(ch, m, now)
	audioPath, err := h.cache.GetOrSynthesize(ctx, text, ch.VoiceID, ch.VoiceParams)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "synthesize preview: %v", err)
		return
	}

	WriteJSON(w, http.StatusOK, previewResponse{
		RenderedText: text,
		AudioPath:    audioPath,
		CacheKey:     h.cache.Key(text, ch.VoiceID, ch.VoiceParams),
		Simulated:    simulated,
	})
}

// serveAudio streams a cached WAV by cache key. Paths come from the index,
// never from the URL, so there is no traversal surface.
func (h *handlers) serveAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, err := h.db.AudioCacheEntry(r.Context(), key)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "no cached audio for key %s", key)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "cache lookup: %v", err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, entry.AudioPath)
}
