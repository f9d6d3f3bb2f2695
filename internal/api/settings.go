package api

import (
	"net/http"

	"github.com/f4lix/vhf-balise/internal/database"
)

type settingsDTO struct {
	MasterEnabled                 bool `json:"master_enabled"`
	PollIntervalSeconds           int  `json:"poll_interval_seconds"`
	InterAnnouncementPauseSeconds int  `json:"inter_announcement_pause_seconds"`
	PTTGpioPin                    *int `json:"ptt_gpio_pin"`
	PTTActiveLevel                int  `json:"ptt_active_level"`
	PTTLeadMs                     int  `json:"ptt_lead_ms"`
	PTTTailMs                     int  `json:"ptt_tail_ms"`
	TxTimeoutSeconds              int  `json:"tx_timeout_seconds"`
}

func settingsToDTO(s *database.SettingsRow) settingsDTO {
	return settingsDTO{
		MasterEnabled:                 s.MasterEnabled,
		PollIntervalSeconds:           s.PollIntervalSeconds,
		InterAnnouncementPauseSeconds: s.InterAnnouncementPauseSeconds,
		PTTGpioPin:                    s.PTTGpioPin,
		PTTActiveLevel:                s.PTTActiveLevel,
		PTTLeadMs:                     s.PTTLeadMs,
		PTTTailMs:                     s.PTTTailMs,
		TxTimeoutSeconds:              s.TxTimeoutSeconds,
	}
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.Settings(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load settings: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, settingsToDTO(s))
}

// putSettings is a partial update: the body is decoded over the current row,
// so clients only send the fields they change.
func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := h.db.Settings(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load settings: %v", err)
		return
	}

	dto := settingsToDTO(current)
	if err := DecodeJSON(r, &dto); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}

	updated := &database.SettingsRow{
		MasterEnabled:                 dto.MasterEnabled,
		PollIntervalSeconds:           dto.PollIntervalSeconds,
		InterAnnouncementPauseSeconds: dto.InterAnnouncementPauseSeconds,
		PTTGpioPin:                    dto.PTTGpioPin,
		PTTActiveLevel:                dto.PTTActiveLevel,
		PTTLeadMs:                     dto.PTTLeadMs,
		PTTTailMs:                     dto.PTTTailMs,
		TxTimeoutSeconds:              dto.TxTimeoutSeconds,
	}
	if err := h.db.UpdateSettings(ctx, updated); err != nil {
		WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	h.log.Info().Bool("master_enabled", updated.MasterEnabled).Msg("settings updated")
	WriteJSON(w, http.StatusOK, settingsToDTO(updated))
}
