package api

import (
	"net/http"
	"sort"

	"github.com/f4lix/vhf-balise/internal/tts"
)

type voicesResponse struct {
	EngineID      string      `json:"engine_id"`
	EngineVersion string      `json:"engine_version"`
	Voices        []tts.Voice `json:"voices"`
}

func (h *handlers) listVoices(w http.ResponseWriter, r *http.Request) {
	voices := h.engine.Voices()
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })

	WriteJSON(w, http.StatusOK, voicesResponse{
		EngineID:      h.engine.ID(),
		EngineVersion: h.engine.Version(),
		Voices:        voices,
	})
}
