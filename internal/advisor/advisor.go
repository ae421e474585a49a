// Package advisor suggests a tier from a customer's trailing 12-month order
// figures. Suggestions are advisory; nothing here writes to the ledger.
package advisor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/qualify"
	"github.com/matthewbaird/followup/internal/types"
)

// Qualifies reports whether m clears every threshold of q: the value and the
// order count, and the expression when one is set. A broken expression
// disqualifies.
func Qualifies(q types.Qualification, m types.OrderMetrics, exprs *qualify.Cache) bool {
	if m.AnnualValue.AmountCents < q.MinAnnualValue.AmountCents {
		return false
	}
	if m.AnnualOrders < q.MinAnnualOrders {
		return false
	}
	if q.Expression == "" {
		return true
	}
	if exprs == nil {
		exprs = qualify.NewCache()
	}
	x, err := exprs.Get(q.Expression)
	if err != nil {
		return false
	}
	ok, err := x.Match(m)
	return err == nil && ok
}

// Advise returns the highest-ID tier whose qualification m meets, or the
// lowest-ID tier when none is met. ok is false only when tiers is empty.
func Advise(m types.OrderMetrics, tiers []types.Tier) (types.Tier, bool) {
	return advise(m, tiers, nil)
}

func advise(m types.OrderMetrics, tiers []types.Tier, exprs *qualify.Cache) (types.Tier, bool) {
	if len(tiers) == 0 {
		return types.Tier{}, false
	}
	ordered := make([]types.Tier, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i := len(ordered) - 1; i >= 0; i-- {
		if Qualifies(ordered[i].Qualification, m, exprs) {
			return ordered[i], true
		}
	}
	return ordered[0], true
}

// TierLister lists the current tiers.
type TierLister interface {
	ListTiers(ctx context.Context) ([]types.Tier, error)
}

// AssignmentReader reads a customer's current tier.
type AssignmentReader interface {
	GetTierAssignment(ctx context.Context, customerID string) (int, bool, error)
}

// Suggestion compares the advised tier with the customer's current one.
type Suggestion struct {
	CustomerID    string             `json:"customer_id"`
	Metrics       types.OrderMetrics `json:"metrics"`
	CurrentTierID *int               `json:"current_tier_id"`
	SuggestedTier *types.Tier        `json:"suggested_tier"`
	Change        string             `json:"change"` // "upgrade", "downgrade", "assign", "none"
}

// Advisor looks up tiers and the current assignment to build Suggestions.
type Advisor struct {
	tiers  TierLister
	ledger AssignmentReader
	exprs  *qualify.Cache
	logger *zap.Logger
}

// New creates an Advisor.
func New(tiers TierLister, ledger AssignmentReader, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{tiers: tiers, ledger: ledger, exprs: qualify.NewCache(), logger: logger}
}

// Review builds a Suggestion for customerID. It returns the ledger's error for
// unknown customers.
func (a *Advisor) Review(ctx context.Context, customerID string, m types.OrderMetrics) (Suggestion, error) {
	current, assigned, err := a.ledger.GetTierAssignment(ctx, customerID)
	if err != nil {
		return Suggestion{}, err
	}
	list, err := a.tiers.ListTiers(ctx)
	if err != nil {
		return Suggestion{}, err
	}

	s := Suggestion{CustomerID: customerID, Metrics: m, Change: "none"}
	if assigned {
		s.CurrentTierID = &current
	}
	t, ok := advise(m, list, a.exprs)
	if !ok {
		return s, nil
	}
	s.SuggestedTier = &t
	switch {
	case !assigned:
		s.Change = "assign"
	case t.ID > current:
		s.Change = "upgrade"
	case t.ID < current:
		s.Change = "downgrade"
	}
	a.logger.Debug("tier advice",
		zap.String("customer_id", customerID),
		zap.Int("suggested_tier", t.ID),
		zap.String("change", s.Change))
	return s, nil
}
