package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/activity"
	"github.com/matthewbaird/followup/internal/advisor"
	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/cadence"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/ledger"
	"github.com/matthewbaird/followup/internal/metrics"
	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/types"
)

// CustomerDeps are the collaborators of a CustomerHandler. Metrics may be nil.
type CustomerDeps struct {
	Ledger    *ledger.Ledger
	Tiers     *tiers.Registry
	Evaluator *cadence.Evaluator
	Recorder  *event.ContactRecorder
	Advisor   *advisor.Advisor
	Activity  activity.Store
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// CustomerHandler implements HTTP handlers for customers, their contacts,
// tier assignment and cadence status.
type CustomerHandler struct {
	CustomerDeps
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(deps CustomerDeps) *CustomerHandler {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Evaluator == nil {
		deps.Evaluator = cadence.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &CustomerHandler{CustomerDeps: deps}
}

type putCustomerRequest struct {
	DisplayName string `json:"display_name"`
}

// PutCustomer handles PUT /v1/customers/{id}.
func (h *CustomerHandler) PutCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req putCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, err)
		return
	}
	if err := h.Ledger.UpsertCustomer(r.Context(), id, req.DisplayName); err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	h.writeCustomer(w, r, id)
}

// GetCustomer handles GET /v1/customers/{id}.
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	h.writeCustomer(w, r, chi.URLParam(r, "id"))
}

func (h *CustomerHandler) writeCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.Ledger.GetCustomer(r.Context(), id)
	if err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type assignTierRequest struct {
	TierID *int `json:"tier_id"`
}

// AssignTier handles PUT /v1/customers/{id}/tier. A null tier_id clears the
// assignment.
func (h *CustomerHandler) AssignTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var req assignTierRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, err)
		return
	}
	if req.TierID != nil {
		if _, err := h.Tiers.GetTier(ctx, *req.TierID); err != nil {
			if apperr.IsNotFound(err) {
				ve := &apperr.ValidationError{}
				ve.Add("tier_id", "unknown tier %d", *req.TierID)
				err = ve
			}
			appErrorToHTTP(w, h.Logger, err)
			return
		}
	}

	prev, assigned, err := h.Ledger.GetTierAssignment(ctx, id)
	if err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	if err := h.Ledger.AssignTier(ctx, id, req.TierID); err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}

	payload := event.TierAssignedPayload{CustomerID: id, TierID: req.TierID}
	if assigned {
		payload.PreviousTierID = &prev
	}
	if err := h.Recorder.Record(ctx, event.NewTierAssigned(payload, h.Clock.Now())); err != nil {
		h.Logger.Warn("publishing tier assignment failed", zap.Error(err))
	}
	h.writeCustomer(w, r, id)
}

type recordContactRequest struct {
	Channel     types.Channel `json:"channel"`
	ContactedAt *time.Time    `json:"contacted_at"` // default: now
	Note        string        `json:"note"`
}

// RecordContact handles POST /v1/customers/{id}/contacts.
func (h *CustomerHandler) RecordContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req recordContactRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, err)
		return
	}
	at := h.Clock.Now()
	if req.ContactedAt != nil {
		at = *req.ContactedAt
	}

	evt, err := h.Recorder.RecordContact(r.Context(), event.ContactPayload{
		CustomerID:  id,
		Channel:     req.Channel,
		ContactedAt: at,
		Actor:       actor(r),
		Note:        req.Note,
	})
	if err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ContactRecorded(req.Channel, "api")
	}
	writeJSON(w, http.StatusCreated, evt)
}

// GetCadence handles GET /v1/customers/{id}/cadence. Every channel is
// evaluated; ?channel= narrows it to one pair.
func (h *CustomerHandler) GetCadence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	channels := types.Channels
	if raw := r.URL.Query().Get("channel"); raw != "" {
		ch, err := types.ParseChannel(raw)
		if err != nil {
			ve := &apperr.ValidationError{}
			ve.Add("channel", "%v", err)
			appErrorToHTTP(w, h.Logger, ve)
			return
		}
		channels = []types.Channel{ch}
	}

	now := h.Clock.Now()
	evals := make([]cadence.Evaluation, 0, len(channels))
	for _, ch := range channels {
		ev, err := h.Evaluator.EvaluatePair(ctx, h.Tiers, h.Ledger, id, ch, now)
		if err != nil {
			appErrorToHTTP(w, h.Logger, err)
			return
		}
		evals = append(evals, ev)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer_id":  id,
		"evaluated_at": now,
		"channels":     evals,
	})
}

// TierAdvice handles POST /v1/customers/{id}/tier-advice. The body carries
// the customer's trailing-year order metrics; nothing is changed.
func (h *CustomerHandler) TierAdvice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var m types.OrderMetrics
	if err := decodeJSON(r, &m); err != nil {
		badBody(w, err)
		return
	}
	ve := &apperr.ValidationError{}
	if m.AnnualOrders < 0 {
		ve.Add("annual_orders", "must not be negative")
	}
	if m.AnnualValue.AmountCents < 0 {
		ve.Add("annual_value.amount_cents", "must not be negative")
	}
	if err := ve.OrNil(); err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}

	s, err := h.Advisor.Review(r.Context(), id, m)
	if err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetActivity handles GET /v1/customers/{id}/activity.
func (h *CustomerHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	opts := activity.DefaultQueryOptions(h.Clock.Now())
	ve := &apperr.ValidationError{}
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		} else {
			ve.Add("since", "must be RFC 3339")
		}
	}
	if u := q.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		} else {
			ve.Add("until", "must be RFC 3339")
		}
	}
	if chs := q.Get("channel"); chs != "" {
		for _, raw := range strings.Split(chs, ",") {
			ch, err := types.ParseChannel(raw)
			if err != nil {
				ve.Add("channel", "%v", err)
				continue
			}
			opts.Channels = append(opts.Channels, ch)
		}
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	opts.Cursor = q.Get("cursor")
	if err := ve.OrNil(); err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}

	entries, nextCursor, totalCount, err := h.Activity.QueryByCustomer(r.Context(), id, opts)
	if err != nil {
		appErrorToHTTP(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{entries, nextCursor, totalCount})
}
