// Package tiers holds the ordered set of customer tiers and their per-channel
// cadence rules.
package tiers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/qualify"
	"github.com/matthewbaird/followup/internal/types"
)

// RefCounter reports how many customers are assigned to a tier.
type RefCounter interface {
	CountByTier(ctx context.Context, tierID int) (int, error)
}

// Registry validates tier writes and guards deletes against live references.
type Registry struct {
	store  Store
	refs   RefCounter
	logger *zap.Logger
}

// NewRegistry creates a Registry over store. refs may be nil, in which case
// deletes are never blocked.
func NewRegistry(store Store, refs RefCounter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, refs: refs, logger: logger}
}

// GetTier returns the tier with the given ID or apperr.ErrNotFound.
func (r *Registry) GetTier(ctx context.Context, id int) (types.Tier, error) {
	return r.store.Get(ctx, id)
}

// ListTiers returns every tier ordered by ID ascending.
func (r *Registry) ListTiers(ctx context.Context) ([]types.Tier, error) {
	return r.store.List(ctx)
}

// UpsertTier validates t and writes it, replacing any tier with the same ID.
func (r *Registry) UpsertTier(ctx context.Context, t types.Tier) error {
	if err := Validate(t); err != nil {
		return err
	}
	if t.Cadence == nil {
		t.Cadence = map[types.Channel]types.ChannelRule{}
	}
	if err := r.store.Put(ctx, t); err != nil {
		return err
	}
	r.logger.Info("tier upserted", zap.Int("tier_id", t.ID), zap.String("name", t.Name))
	return nil
}

// DeleteTier removes the tier. It fails with *apperr.InUseError while any
// customer is still assigned to it; customers are never reassigned here.
func (r *Registry) DeleteTier(ctx context.Context, id int) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	if r.refs != nil {
		n, err := r.refs.CountByTier(ctx, id)
		if err != nil {
			return fmt.Errorf("counting tier references: %w", err)
		}
		if n > 0 {
			return &apperr.InUseError{TierID: id, Customers: n}
		}
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("tier deleted", zap.Int("tier_id", id))
	return nil
}

// Validate checks a tier against the registry's write rules.
func Validate(t types.Tier) error {
	ve := &apperr.ValidationError{}
	if t.ID <= 0 {
		ve.Add("id", "must be a positive integer, got %d", t.ID)
	}
	if t.Name == "" {
		ve.Add("name", "is required")
	}
	for _, c := range sortedChannels(t.Cadence) {
		rule := t.Cadence[c]
		field := "cadence." + string(c)
		if !c.Valid() {
			ve.Add(field, "unknown channel")
			continue
		}
		if rule.FrequencyDays <= 0 {
			ve.Add(field+".frequency_days", "must be positive, got %d", rule.FrequencyDays)
		} else if rule.FrequencyDays > types.MaxCadenceDays {
			ve.Add(field+".frequency_days", "must be at most %d, got %d", types.MaxCadenceDays, rule.FrequencyDays)
		}
		if rule.LeadDays != nil {
			if *rule.LeadDays < 0 {
				ve.Add(field+".lead_days", "must not be negative, got %d", *rule.LeadDays)
			} else if *rule.LeadDays > types.MaxCadenceDays {
				ve.Add(field+".lead_days", "must be at most %d, got %d", types.MaxCadenceDays, *rule.LeadDays)
			}
		}
	}
	q := t.Qualification
	if q.MinAnnualValue.AmountCents < 0 {
		ve.Add("qualification.min_annual_value", "must not be negative")
	}
	if q.MinAnnualOrders < 0 {
		ve.Add("qualification.min_annual_orders", "must not be negative")
	}
	if q.Expression != "" {
		if _, err := qualify.Compile(q.Expression); err != nil {
			ve.Add("qualification.expression", "%v", err)
		}
	}
	return ve.OrNil()
}

func sortedChannels(m map[types.Channel]types.ChannelRule) []types.Channel {
	return types.Tier{Cadence: m}.Channels()
}
