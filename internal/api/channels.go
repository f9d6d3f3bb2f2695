package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/f4lix/vhf-balise/internal/clock"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/hashing"
	"github.com/f4lix/vhf-balise/internal/runner"
	"github.com/f4lix/vhf-balise/internal/template"
)

type channelDTO struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Enabled          bool    `json:"enabled"`
	ProviderID       string  `json:"provider_id"`
	StationID        string  `json:"station_id"`
	StationNameCache *string `json:"station_name_cache,omitempty"`

	MeasurementPeriodSeconds    int   `json:"measurement_period_seconds"`
	OffsetsSeconds              []int `json:"offsets_seconds"`
	MinIntervalBetweenTxSeconds int   `json:"min_interval_between_tx_seconds"`

	TemplateText string         `json:"template_text"`
	EngineID     string         `json:"engine_id"`
	VoiceID      string         `json:"voice_id"`
	VoiceParams  map[string]any `json:"voice_params,omitempty"`

	LeadMs int `json:"lead_ms"`
	TailMs int `json:"tail_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func channelToDTO(c *database.ChannelRow) channelDTO {
	return channelDTO{
		ID:                          c.ID,
		Name:                        c.Name,
		Enabled:                     c.Enabled,
		ProviderID:                  c.ProviderID,
		StationID:                   c.StationID,
		StationNameCache:            c.StationNameCache,
		MeasurementPeriodSeconds:    c.MeasurementPeriodSeconds,
		OffsetsSeconds:              c.OffsetsSeconds,
		MinIntervalBetweenTxSeconds: c.MinIntervalBetweenTxSeconds,
		TemplateText:                c.TemplateText,
		EngineID:                    c.EngineID,
		VoiceID:                     c.VoiceID,
		VoiceParams:                 c.VoiceParams,
		LeadMs:                      c.LeadMs,
		TailMs:                      c.TailMs,
		CreatedAt:                   c.CreatedAt,
		UpdatedAt:                   c.UpdatedAt,
	}
}

func (d channelDTO) toRow() *database.ChannelRow {
	return &database.ChannelRow{
		ID:                          d.ID,
		Name:                        d.Name,
		Enabled:                     d.Enabled,
		ProviderID:                  d.ProviderID,
		StationID:                   d.StationID,
		StationNameCache:            d.StationNameCache,
		MeasurementPeriodSeconds:    d.MeasurementPeriodSeconds,
		OffsetsSeconds:              d.OffsetsSeconds,
		MinIntervalBetweenTxSeconds: d.MinIntervalBetweenTxSeconds,
		TemplateText:                d.TemplateText,
		EngineID:                    d.EngineID,
		VoiceID:                     d.VoiceID,
		VoiceParams:                 d.VoiceParams,
		LeadMs:                      d.LeadMs,
		TailMs:                      d.TailMs,
	}
}

// checkChannel validates the cross-cutting parts Validate cannot see: the
// provider must be registered and the template placeholders known.
func (h *handlers) checkChannel(c *database.ChannelRow) error {
	if _, err := h.providers.Get(c.ProviderID); err != nil {
		return err
	}
	return template.Validate(c.TemplateText)
}

func (h *handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.db.ListChannels(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list channels: %v", err)
		return
	}
	out := make([]channelDTO, 0, len(channels))
	for _, c := range channels {
		out = append(out, channelToDTO(c))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) getChannel(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	c, err := h.db.ChannelByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "channel %d not found", id)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load channel: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, channelToDTO(c))
}

func (h *handlers) createChannel(w http.ResponseWriter, r *http.Request) {
	var dto channelDTO
	if err := DecodeJSON(r, &dto); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if dto.EngineID == "" {
		dto.EngineID = h.engine.ID()
	}

	row := dto.toRow()
	if err := h.checkChannel(row); err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	now := clock.Naive(time.Now().UTC())
	id, err := h.db.InsertChannel(r.Context(), row, now)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	created, err := h.db.ChannelByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "reload channel: %v", err)
		return
	}
	h.log.Info().Int64("channel", id).Str("name", created.Name).Msg("channel created")
	WriteJSON(w, http.StatusCreated, channelToDTO(created))
}

// updateChannel is a partial update over the stored row, same convention as
// settings.
func (h *handlers) updateChannel(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	current, err := h.db.ChannelByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "channel %d not found", id)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load channel: %v", err)
		return
	}

	dto := channelToDTO(current)
	if err := DecodeJSON(r, &dto); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}

	row := dto.toRow()
	row.ID = id
	if err := h.checkChannel(row); err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	now := clock.Naive(time.Now().UTC())
	if err := h.db.UpdateChannel(r.Context(), row, now); err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	updated, err := h.db.ChannelByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "reload channel: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, channelToDTO(updated))
}

func (h *handlers) deleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	err = h.db.DeleteChannel(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "channel %d not found", id)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "delete channel: %v", err)
		return
	}
	h.log.Info().Int64("channel", id).Msg("channel deleted")
	w.WriteHeader(http.StatusNoContent)
}

type resolveURLRequest struct {
	URL string `json:"url"`
}

func (h *handlers) resolveStationURL(w http.ResponseWriter, r *http.Request) {
	var req resolveURLRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	info, err := h.providers.ResolveStationURL(req.URL)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

type testChannelResponse struct {
	TxID         string    `json:"tx_id"`
	RenderedText string    `json:"rendered_text"`
	PlannedAt    time.Time `json:"planned_at"`
}

// testChannel queues one immediate MANUAL_TEST transmission from a live
// measurement. The runner picks it up on its next tick; manual tests bypass
// the anti-spam interval but not the staleness guards.
func (h *handlers) testChannel(w http.ResponseWriter, r *http.Request) {
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

	p, err := h.providers.Get(ch.ProviderID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	m, err := p.FetchMeasurement(ctx, ch.StationID)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "fetch measurement: %v", err)
		return
	}
	if m == nil {
		WriteError(w, http.StatusNotFound, "no measurement available for station %s", ch.StationID)
		return
	}

	now := clock.Naive(time.Now().UTC())
	text := runner.RenderAnnouncement(ch, m, now)

	// A nanosecond salt keeps repeated tests distinct; idempotency is for
	// scheduled plans, not operator clicks.
	txID := hashing.Digest("manual_test", ch.ID, time.Now().UnixNano())
	_, err = h.db.InsertTx(ctx, &database.TxRow{
		TxID:          txID,
		ChannelID:     ch.ID,
		Mode:          database.ModeManualTest,
		Status:        database.StatusPending,
		StationID:     ch.StationID,
		MeasurementAt: m.MeasurementAt,
		PlannedAt:     now,
		RenderedText:  text,
	}, now)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "queue test: %v", err)
		return
	}

	h.log.Info().Int64("channel", ch.ID).Str("tx_id", txID).Msg("manual test queued")
	WriteJSON(w, http.StatusAccepted, testChannelResponse{
		TxID:         txID,
		RenderedText: text,
		PlannedAt:    now,
	})
}
