package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "database: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

type channelStatus struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Enabled           bool       `json:"enabled"`
	ProviderID        string     `json:"provider_id"`
	StationID         string     `json:"station_id"`
	LastMeasurementAt *time.Time `json:"last_measurement_at"`
	LastTxAt          *time.Time `json:"last_tx_at"`
	NextTxAt          *time.Time `json:"next_tx_at"`
	LastError         *string    `json:"last_error"`
}

type statusResponse struct {
	MasterEnabled bool            `json:"master_enabled"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	VoiceCount    int             `json:"voice_count"`
	LastTickAt    *time.Time      `json:"last_tick_at"`
	RunnerAlive   bool            `json:"runner_alive"`
	Channels      []channelStatus `json:"channels"`
}

// runnerAliveWindow is how recent the heartbeat must be to call the runner
// alive; the heartbeat lands once per second.
const runnerAliveWindow = 5 * time.Second

// status is the one-call dashboard view: master switch plus every channel's
// runtime row.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.db.Settings(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load settings: %v", err)
		return
	}

	channels, err := h.db.ListChannels(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list channels: %v", err)
		return
	}

	lastTick, err := h.db.LastTick(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load heartbeat: %v", err)
		return
	}

	out := statusResponse{
		MasterEnabled: settings.MasterEnabled,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		VoiceCount:    len(h.engine.Voices()),
		LastTickAt:    lastTick,
		RunnerAlive:   lastTick != nil && time.Now().UTC().Sub(*lastTick) < runnerAliveWindow,
		Channels:      make([]channelStatus, 0, len(channels)),
	}
	for _, ch := range channels {
		rt, err := h.db.Runtime(ctx, ch.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "runtime for channel %d: %v", ch.ID, err)
			return
		}
		out.Channels = append(out.Channels, channelStatus{
			ID:                ch.ID,
			Name:              ch.Name,
			Enabled:           ch.Enabled,
			ProviderID:        ch.ProviderID,
			StationID:         ch.StationID,
			LastMeasurementAt: rt.LastMeasurementAt,
			LastTxAt:          rt.LastTxAt,
			NextTxAt:          rt.NextTxAt,
			LastError:         rt.LastError,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}
