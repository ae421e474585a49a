// Package ledger keeps, per customer, the most recent contact time on each
// channel and the customer's current tier assignment. It keeps no history;
// the activity log holds every contact.
package ledger

import (
	"context"
	"time"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/types"
)

// Store is the persistence behind a Ledger. Implementations return
// apperr.ErrNotFound for unknown customers.
type Store interface {
	// Contact returns the latest contact on channel; ok is false when the
	// customer has never been contacted there.
	Contact(ctx context.Context, customerID string, channel types.Channel) (at time.Time, ok bool, err error)

	// PutContact stores at if it is newer than the stored time, creating the
	// customer and the touchpoint record when missing.
	PutContact(ctx context.Context, customerID string, channel types.Channel, at time.Time) error

	Assignment(ctx context.Context, customerID string) (tierID int, ok bool, err error)
	SetAssignment(ctx context.Context, customerID string, tierID *int) error

	Customer(ctx context.Context, customerID string) (types.Customer, error)
	PutCustomer(ctx context.Context, customerID, displayName string) error

	CustomerIDs(ctx context.Context) ([]string, error)
	CountByTier(ctx context.Context, tierID int) (int, error)
}

// Ledger is the touchpoint ledger. It rejects future-dated contacts against
// its injected clock and otherwise delegates to the Store.
type Ledger struct {
	store Store
	clock clock.Clock
}

// New creates a Ledger. A nil clock uses the system clock.
func New(store Store, c clock.Clock) *Ledger {
	if c == nil {
		c = clock.System{}
	}
	return &Ledger{store: store, clock: c}
}

// GetLastContact returns the latest contact on channel. ok is false for the
// never-contacted marker.
func (l *Ledger) GetLastContact(ctx context.Context, customerID string, channel types.Channel) (time.Time, bool, error) {
	return l.store.Contact(ctx, customerID, channel)
}

// RecordContact stores a contact at time at. It fails with
// *apperr.InvalidTimeError when at is later than now and with
// *apperr.ValidationError when at is the zero time. Older timestamps than the
// one already recorded are accepted and ignored.
func (l *Ledger) RecordContact(ctx context.Context, customerID string, channel types.Channel, at time.Time) error {
	if customerID == "" {
		ve := &apperr.ValidationError{}
		ve.Add("customer_id", "is required")
		return ve
	}
	if !channel.Valid() {
		ve := &apperr.ValidationError{}
		ve.Add("channel", "unknown channel %q", channel)
		return ve
	}
	if at.IsZero() {
		ve := &apperr.ValidationError{}
		ve.Add("contacted_at", "is required")
		return ve
	}
	now := l.clock.Now()
	if at.After(now) {
		return &apperr.InvalidTimeError{At: at, Now: now}
	}
	return l.store.PutContact(ctx, customerID, channel, at.UTC())
}

// GetTierAssignment returns the customer's tier. ok is false when the customer
// is unassigned.
func (l *Ledger) GetTierAssignment(ctx context.Context, customerID string) (int, bool, error) {
	return l.store.Assignment(ctx, customerID)
}

// AssignTier sets or clears (tierID == nil) the customer's tier. Callers check
// that the tier exists.
func (l *Ledger) AssignTier(ctx context.Context, customerID string, tierID *int) error {
	return l.store.SetAssignment(ctx, customerID, tierID)
}

// UpsertCustomer creates the customer or updates its display name.
func (l *Ledger) UpsertCustomer(ctx context.Context, customerID, displayName string) error {
	if customerID == "" {
		ve := &apperr.ValidationError{}
		ve.Add("customer_id", "is required")
		return ve
	}
	return l.store.PutCustomer(ctx, customerID, displayName)
}

// GetCustomer returns a snapshot of the customer and its touchpoints.
func (l *Ledger) GetCustomer(ctx context.Context, customerID string) (types.Customer, error) {
	return l.store.Customer(ctx, customerID)
}

// ListCustomerIDs returns every customer ID in ascending order.
func (l *Ledger) ListCustomerIDs(ctx context.Context) ([]string, error) {
	return l.store.CustomerIDs(ctx)
}

// CountByTier returns how many customers are assigned to tierID.
func (l *Ledger) CountByTier(ctx context.Context, tierID int) (int, error) {
	return l.store.CountByTier(ctx, tierID)
}
