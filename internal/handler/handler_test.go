package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/activity"
	"github.com/matthewbaird/followup/internal/advisor"
	"github.com/matthewbaird/followup/internal/cadence"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/ledger"
	"github.com/matthewbaird/followup/internal/reminders"
	"github.com/matthewbaird/followup/internal/scheduler"
	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// syncBus delivers events to the indexer inline so tests can read history
// right after a request.
type syncBus struct {
	indexer *activity.Indexer
	events  []event.DomainEvent
}

func (b *syncBus) Publish(ctx context.Context, evt event.DomainEvent) {
	b.events = append(b.events, evt)
	_ = b.indexer.HandleEvent(ctx, evt)
}

type testServer struct {
	router http.Handler
	ledger *ledger.Ledger
	bus    *syncBus
	clock  *clock.Fixed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.NewFixed(now)
	l := ledger.New(ledger.NewMemoryStore(), clk)
	reg := tiers.NewRegistry(tiers.NewMemoryStore(), l, zap.NewNop())
	acts := activity.NewMemoryStore()
	bus := &syncBus{indexer: activity.NewIndexer(acts)}
	rec := event.NewContactRecorder(l)
	rec.SetPublisher(bus)

	eval := cadence.New()
	sched := scheduler.New(scheduler.Config{
		Computer: reminders.New(reminders.Config{Tiers: reg, Customers: l, Evaluator: eval, Clock: clk}),
	})

	r := chi.NewRouter()
	Mount(r, Handlers{
		Tiers: NewTierHandler(reg, rec, clk, zap.NewNop()),
		Customers: NewCustomerHandler(CustomerDeps{
			Ledger:    l,
			Tiers:     reg,
			Evaluator: eval,
			Recorder:  rec,
			Advisor:   advisor.New(reg, l, zap.NewNop()),
			Activity:  acts,
			Clock:     clk,
		}),
		Reminders:      NewReminderHandler(sched, zap.NewNop()),
		RefreshLimiter: NewRateLimiter(1, 1, zap.NewNop()),
	})
	return &testServer{router: r, ledger: l, bus: bus, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor", "sam")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func threeStars() types.Tier {
	return types.Tier{
		Name: "3 Stars",
		Cadence: map[types.Channel]types.ChannelRule{
			types.ChannelVisit: {FrequencyDays: 60},
		},
		Qualification: types.Qualification{
			MinAnnualValue:  types.Money{AmountCents: 2_500_000, Currency: "USD"},
			MinAnnualOrders: 6,
		},
	}
}

func TestTiers_CRUD(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPut, "/v1/tiers/3", threeStars())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 3, decode[types.Tier](t, rr).ID)

	rr = s.do(t, http.MethodGet, "/v1/tiers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[map[string][]types.Tier](t, rr)["tiers"]
	require.Len(t, list, 1)
	assert.Equal(t, "3 Stars", list[0].Name)

	rr = s.do(t, http.MethodGet, "/v1/tiers/9", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodDelete, "/v1/tiers/3", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(t, http.MethodGet, "/v1/tiers/3", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var got []string
	for _, e := range s.bus.events {
		got = append(got, e.EventType)
	}
	assert.Equal(t, []string{event.TypeTierChanged, event.TypeTierDeleted}, got)
}

func TestTiers_Validation(t *testing.T) {
	s := newTestServer(t)

	bad := threeStars()
	bad.Cadence[types.ChannelVisit] = types.ChannelRule{FrequencyDays: 0}
	rr := s.do(t, http.MethodPut, "/v1/tiers/3", bad)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[errorBody](t, rr)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.NotEmpty(t, body.Problems)

	mismatched := threeStars()
	mismatched.ID = 4
	rr = s.do(t, http.MethodPut, "/v1/tiers/3", mismatched)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/v1/tiers/abc", threeStars())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_ID", decode[errorBody](t, rr).Code)
}

func TestTiers_DeleteInUse(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/tiers/3", threeStars()).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x", map[string]string{"display_name": "X"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x/tier", map[string]int{"tier_id": 3}).Code)

	rr := s.do(t, http.MethodDelete, "/v1/tiers/3", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "IN_USE", decode[errorBody](t, rr).Code)
}

func TestCustomers_AssignUnknownTier(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x", map[string]string{}).Code)

	rr := s.do(t, http.MethodPut, "/v1/customers/x/tier", map[string]int{"tier_id": 8})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/v1/customers/ghost/tier", map[string]any{"tier_id": nil})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCustomers_ContactsAndCadence(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/tiers/3", threeStars()).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x", map[string]string{"display_name": "X"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x/tier", map[string]int{"tier_id": 3}).Code)

	at := now.Add(-65 * cadence.Day)
	rr := s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{"channel": "visit", "contacted_at": at})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, event.TypeVisitLogged, decode[event.DomainEvent](t, rr).EventType)

	rr = s.do(t, http.MethodGet, "/v1/customers/x/cadence?channel=visit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[struct {
		Channels []cadence.Evaluation `json:"channels"`
	}](t, rr)
	require.Len(t, got.Channels, 1)
	assert.True(t, got.Channels[0].Overdue)
	assert.Equal(t, -5, got.Channels[0].DaysUntilDue)

	rr = s.do(t, http.MethodGet, "/v1/customers/x/cadence", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	all := decode[struct {
		Channels []cadence.Evaluation `json:"channels"`
	}](t, rr)
	require.Len(t, all.Channels, len(types.Channels))
	for _, ev := range all.Channels {
		if ev.Channel != types.ChannelVisit {
			assert.False(t, ev.Evaluable)
			assert.Equal(t, cadence.ReasonNoCadence, ev.Reason)
		}
	}

	rr = s.do(t, http.MethodGet, "/v1/customers/x", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	c := decode[types.Customer](t, rr)
	require.NotNil(t, c.TierID)
	assert.Equal(t, 3, *c.TierID)
	assert.True(t, at.Equal(*c.Touchpoints[types.ChannelVisit].LastContactedAt))
}

func TestCustomers_ContactErrors(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{"channel": "visit", "contacted_at": now.Add(time.Hour)})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_TIME", decode[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{"channel": "visit", "contacted_at": time.Time{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{"channel": "fax"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{"channel": "visit", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_BODY", decode[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/v1/customers/nobody/cadence", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCustomers_Activity(t *testing.T) {
	s := newTestServer(t)
	for i, ch := range []string{"email", "phone", "email"} {
		rr := s.do(t, http.MethodPost, "/v1/customers/x/contacts", map[string]any{
			"channel":      ch,
			"contacted_at": now.Add(-time.Duration(i+1) * cadence.Day),
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := s.do(t, http.MethodGet, "/v1/customers/x/activity?channel=email", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[struct {
		Activities []types.ActivityEntry `json:"activities"`
		TotalCount int                   `json:"total_count"`
	}](t, rr)
	assert.Equal(t, 2, got.TotalCount)
	require.Len(t, got.Activities, 2)
	assert.True(t, got.Activities[0].OccurredAt.After(got.Activities[1].OccurredAt))
	assert.Equal(t, "actor", got.Activities[0].SourceRefs[1].Role)

	rr = s.do(t, http.MethodGet, "/v1/customers/x/activity?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCustomers_TierAdvice(t *testing.T) {
	s := newTestServer(t)
	low := types.Tier{Name: "1 Star", Cadence: map[types.Channel]types.ChannelRule{types.ChannelEmail: {FrequencyDays: 30}}}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/tiers/1", low).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/tiers/3", threeStars()).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x", map[string]string{}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/x/tier", map[string]int{"tier_id": 1}).Code)

	rr := s.do(t, http.MethodPost, "/v1/customers/x/tier-advice", types.OrderMetrics{
		AnnualOrders: 8,
		AnnualValue:  types.Money{AmountCents: 3_000_000, Currency: "USD"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sug := decode[advisor.Suggestion](t, rr)
	require.NotNil(t, sug.SuggestedTier)
	assert.Equal(t, 3, sug.SuggestedTier.ID)
	assert.Equal(t, "upgrade", sug.Change)

	// Advisory only.
	id, _, err := s.ledger.GetTierAssignment(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	rr = s.do(t, http.MethodPost, "/v1/customers/x/tier-advice", types.OrderMetrics{AnnualOrders: -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReminders_WorklistAndRefreshLimit(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/tiers/3", threeStars()).Code)
	for _, id := range []string{"x", "y"} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/"+id, map[string]string{}).Code)
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/customers/"+id+"/tier", map[string]int{"tier_id": 3}).Code)
	}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/customers/x/contacts",
		map[string]any{"channel": "visit", "contacted_at": now.Add(-65 * cadence.Day)}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/customers/y/contacts",
		map[string]any{"channel": "visit", "contacted_at": now.Add(-10 * cadence.Day)}).Code)

	rr := s.do(t, http.MethodGet, "/v1/reminders", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	wl := decode[types.Worklist](t, rr)
	require.Len(t, wl.Overdue, 1)
	assert.Equal(t, "x", wl.Overdue[0].CustomerID)
	assert.Equal(t, -5, wl.Overdue[0].DaysUntilDue)
	assert.Empty(t, wl.Upcoming)

	rr = s.do(t, http.MethodPost, "/v1/reminders/refresh", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodPost, "/v1/reminders/refresh", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "given", seen)
}
