package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/types"
)

// WorklistSource serves cached passes and runs fresh ones.
type WorklistSource interface {
	Latest(ctx context.Context) (types.Worklist, bool, error)
	RunOnce(ctx context.Context) types.Worklist
}

// ReminderHandler implements HTTP handlers for the follow-up worklist.
type ReminderHandler struct {
	source WorklistSource
	logger *zap.Logger
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(source WorklistSource, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{source: source, logger: logger}
}

// GetWorklist handles GET /v1/reminders. It serves the latest pass and only
// computes one when none exists yet.
func (h *ReminderHandler) GetWorklist(w http.ResponseWriter, r *http.Request) {
	wl, ok, err := h.source.Latest(r.Context())
	if err != nil {
		h.logger.Warn("reading cached worklist failed", zap.Error(err))
	}
	if !ok || err != nil {
		wl = h.source.RunOnce(r.Context())
	}
	writeJSON(w, http.StatusOK, normalize(wl))
}

// Refresh handles POST /v1/reminders/refresh.
func (h *ReminderHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, normalize(h.source.RunOnce(r.Context())))
}

// normalize renders empty buckets as [] rather than null.
func normalize(wl types.Worklist) types.Worklist {
	if wl.Overdue == nil {
		wl.Overdue = []types.Reminder{}
	}
	if wl.Upcoming == nil {
		wl.Upcoming = []types.Reminder{}
	}
	return wl
}
