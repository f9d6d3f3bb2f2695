package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/f4lix/vhf-balise/internal/database"
)

type txDTO struct {
	ID            int64      `json:"id"`
	TxID          string     `json:"tx_id"`
	ChannelID     int64      `json:"channel_id"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	StationID     string     `json:"station_id"`
	MeasurementAt time.Time  `json:"measurement_at"`
	OffsetSeconds int        `json:"offset_seconds"`
	PlannedAt     time.Time  `json:"planned_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	RenderedText  string     `json:"rendered_text"`
	AudioPath     *string    `json:"audio_path,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func txToDTO(r *database.TxRow) txDTO {
	return txDTO{
		ID:            r.ID,
		TxID:          r.TxID,
		ChannelID:     r.ChannelID,
		Mode:          r.Mode,
		Status:        r.Status,
		StationID:     r.StationID,
		MeasurementAt: r.MeasurementAt,
		OffsetSeconds: r.OffsetSeconds,
		PlannedAt:     r.PlannedAt,
		SentAt:        r.SentAt,
		RenderedText:  r.RenderedText,
		AudioPath:     r.AudioPath,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
	}
}

// txHistory lists ledger rows newest-first. Filters: channel_id, status,
// limit, offset.
func (h *handlers) txHistory(w http.ResponseWriter, r *http.Request) {
	f := database.TxHistoryFilter{
		Limit:  QueryInt(r, "limit", 100, 1, 500),
		Offset: QueryInt(r, "offset", 0, 0, 1<<30),
	}
	if raw := r.URL.Query().Get("channel_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid channel_id %q", raw)
			return
		}
		f.ChannelID = &id
	}
	if status := r.URL.Query().Get("status"); status != "" {
		switch status {
		case database.StatusPending, database.StatusSent, database.StatusFailed, database.StatusAborted:
			f.Status = status
		default:
			WriteError(w, http.StatusBadRequest, "invalid status %q", status)
			return
		}
	}

	rows, err := h.db.TxHistory(r.Context(), f)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query history: %v", err)
		return
	}
	out := make([]txDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, txToDTO(row))
	}
	WriteJSON(w, http.StatusOK, out)
}
