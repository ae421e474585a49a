package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/types"
)

// TierHandler implements HTTP handlers for the tier registry.
type TierHandler struct {
	registry *tiers.Registry
	events   event.Recorder
	clock    clock.Clock
	logger   *zap.Logger
}

// NewTierHandler creates a new TierHandler.
func NewTierHandler(registry *tiers.Registry, events event.Recorder, c clock.Clock, logger *zap.Logger) *TierHandler {
	return &TierHandler{registry: registry, events: events, clock: c, logger: logger}
}

// ListTiers handles GET /v1/tiers.
func (h *TierHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.ListTiers(r.Context())
	if err != nil {
		appErrorToHTTP(w, h.logger, err)
		return
	}
	if list == nil {
		list = []types.Tier{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": list})
}

// GetTier handles GET /v1/tiers/{id}.
func (h *TierHandler) GetTier(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTierID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.registry.GetTier(r.Context(), id)
	if err != nil {
		appErrorToHTTP(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PutTier handles PUT /v1/tiers/{id}. The body is the full tier definition;
// an id in the body must match the path.
func (h *TierHandler) PutTier(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTierID(w, r, "id")
	if !ok {
		return
	}
	var t types.Tier
	if err := decodeJSON(r, &t); err != nil {
		badBody(w, err)
		return
	}
	if t.ID != 0 && t.ID != id {
		ve := &apperr.ValidationError{}
		ve.Add("id", "body id %d does not match path id %d", t.ID, id)
		appErrorToHTTP(w, h.logger, ve)
		return
	}
	t.ID = id

	if err := h.registry.UpsertTier(r.Context(), t); err != nil {
		appErrorToHTTP(w, h.logger, err)
		return
	}
	if err := h.events.Record(r.Context(), event.NewTierChanged(t, h.clock.Now())); err != nil {
		h.logger.Warn("publishing tier change failed", zap.Error(err))
	}

	stored, err := h.registry.GetTier(r.Context(), id)
	if err != nil {
		appErrorToHTTP(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// DeleteTier handles DELETE /v1/tiers/{id}.
func (h *TierHandler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTierID(w, r, "id")
	if !ok {
		return
	}
	if err := h.registry.DeleteTier(r.Context(), id); err != nil {
		appErrorToHTTP(w, h.logger, err)
		return
	}
	if err := h.events.Record(r.Context(), event.NewTierDeleted(id, h.clock.Now())); err != nil {
		h.logger.Warn("publishing tier deletion failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
