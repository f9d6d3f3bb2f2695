package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/f4lix/vhf-balise/internal/clock"
)

type providerInfo struct {
	ID                  string `json:"id"`
	RequiresCredentials bool   `json:"requires_credentials"`
	Configured          bool   `json:"configured"`
}

func (h *handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	stored, err := h.db.Credentials(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load credentials: %v", err)
		return
	}

	ids := h.providers.IDs()
	sort.Strings(ids)

	out := make([]providerInfo, 0, len(ids))
	for _, id := range ids {
		p, err := h.providers.Get(id)
		if err != nil {
			continue
		}
		out = append(out, providerInfo{
			ID:                  id,
			RequiresCredentials: p.RequiresCredentials(),
			Configured:          len(stored[id]) > 0,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// listCredentials exposes which keys are set, never their values.
func (h *handlers) listCredentials(w http.ResponseWriter, r *http.Request) {
	stored, err := h.db.Credentials(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "load credentials: %v", err)
		return
	}

	out := make(map[string][]string, len(stored))
	for providerID, creds := range stored {
		keys := make([]string, 0, len(creds))
		for k := range creds {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[providerID] = keys
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) putCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	if _, err := h.providers.Get(providerID); err != nil {
		WriteError(w, http.StatusNotFound, "%v", err)
		return
	}

	var creds map[string]string
	if err := DecodeJSON(r, &creds); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if len(creds) == 0 {
		WriteError(w, http.StatusBadRequest, "credentials body is empty")
		return
	}

	now := clock.Naive(time.Now().UTC())
	if err := h.db.UpsertCredentials(r.Context(), providerID, creds, now); err != nil {
		WriteError(w, http.StatusInternalServerError, "store credentials: %v", err)
		return
	}
	// Push into this process too so preview and manual tests see the new
	// key without a restart. The runner re-reads credentials every tick.
	h.providers.ApplyCredentials(map[string]map[string]string{providerID: creds})
	h.log.Info().Str("provider", providerID).Msg("credentials updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	if err := h.db.DeleteCredentials(r.Context(), providerID); err != nil {
		WriteError(w, http.StatusInternalServerError, "delete credentials: %v", err)
		return
	}
	h.log.Info().Str("provider", providerID).Msg("credentials deleted")
	w.WriteHeader(http.StatusNoContent)
}

// keyValidator is implemented by providers that can check an API key
// against their backend before it is stored.
type keyValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (bool, error)
}

type validateCredentialsRequest struct {
	APIKey string `json:"api_key"`
}

type validateCredentialsResponse struct {
	Valid bool `json:"valid"`
}

func (h *handlers) validateCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	p, err := h.providers.Get(providerID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "%v", err)
		return
	}
	v, ok := p.(keyValidator)
	if !ok {
		WriteError(w, http.StatusUnprocessableEntity, "provider %s does not support key validation", providerID)
		return
	}

	var req validateCredentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if req.APIKey == "" {
		WriteError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	valid, err := v.ValidateAPIKey(r.Context(), req.APIKey)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "validate key: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, validateCredentialsResponse{Valid: valid})
}
