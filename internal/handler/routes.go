package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers groups everything Mount registers. Feed and RefreshLimiter may be
// nil.
type Handlers struct {
	Tiers          *TierHandler
	Customers      *CustomerHandler
	Reminders      *ReminderHandler
	Feed           http.Handler
	RefreshLimiter *RateLimiter
}

// Mount registers the /v1 API on r.
func Mount(r chi.Router, h Handlers) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", h.Tiers.ListTiers)
			r.Get("/{id}", h.Tiers.GetTier)
			r.Put("/{id}", h.Tiers.PutTier)
			r.Delete("/{id}", h.Tiers.DeleteTier)
		})

		r.Route("/customers/{id}", func(r chi.Router) {
			r.Put("/", h.Customers.PutCustomer)
			r.Get("/", h.Customers.GetCustomer)
			r.Put("/tier", h.Customers.AssignTier)
			r.Post("/contacts", h.Customers.RecordContact)
			r.Get("/cadence", h.Customers.GetCadence)
			r.Post("/tier-advice", h.Customers.TierAdvice)
			r.Get("/activity", h.Customers.GetActivity)
		})

		r.Route("/reminders", func(r chi.Router) {
			r.Get("/", h.Reminders.GetWorklist)
			refresh := http.Handler(http.HandlerFunc(h.Reminders.Refresh))
			if h.RefreshLimiter != nil {
				refresh = h.RefreshLimiter.Limit(refresh)
			}
			r.Method(http.MethodPost, "/refresh", refresh)
			if h.Feed != nil {
				r.Method(http.MethodGet, "/ws", h.Feed)
			}
		})
	})
}
