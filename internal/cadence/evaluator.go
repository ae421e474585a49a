// Package cadence computes, for one (customer, channel) pair, when the next
// contact is due and how urgent it is.
//
// Days are rolling 24-hour periods measured from the contact instant. They are
// not calendar days and are not normalised to any timezone.
package cadence

import (
	"context"
	"time"

	"github.com/matthewbaird/followup/internal/types"
)

// Day is the unit every cadence and lead is expressed in.
const Day = 24 * time.Hour

// DefaultLeadDays is the reminder lead used when a tier does not set one for
// a channel.
var DefaultLeadDays = map[types.Channel]int{
	types.ChannelVisit:   7,
	types.ChannelEmail:   3,
	types.ChannelPhone:   5,
	types.ChannelMessage: 2,
}

// Reasons a pair is not evaluable.
const (
	ReasonUnassigned = "unassigned"
	ReasonNoCadence  = "channel_not_configured"
)

// Evaluation is the result for one (customer, channel) pair. A pair that is
// not evaluable carries no obligation; that is a normal outcome, not an error.
type Evaluation struct {
	CustomerID     string        `json:"customer_id,omitempty"`
	Channel        types.Channel `json:"channel"`
	TierID         int           `json:"tier_id,omitempty"`
	Evaluable      bool          `json:"evaluable"`
	Reason         string        `json:"reason,omitempty"`
	Overdue        bool          `json:"overdue"`
	InWindow       bool          `json:"in_window"`
	NeverContacted bool          `json:"never_contacted"`
	DaysUntilDue   int           `json:"days_until_due"`
	DueAt          *time.Time    `json:"due_at"`
	CadenceDays    int           `json:"cadence_days,omitempty"`
	LeadDays       int           `json:"lead_days,omitempty"`
}

// Reminder converts the evaluation into a worklist item.
func (e Evaluation) Reminder() types.Reminder {
	return types.Reminder{
		CustomerID:     e.CustomerID,
		Channel:        e.Channel,
		TierID:         e.TierID,
		DueAt:          e.DueAt,
		DaysUntilDue:   e.DaysUntilDue,
		NeverContacted: e.NeverContacted,
	}
}

// Evaluator applies cadence rules. It holds no state beyond its lead defaults
// and is safe for concurrent use.
type Evaluator struct {
	defaultLead map[types.Channel]int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithDefaultLeadDays overrides the per-channel fallback leads. Channels not
// present in m keep their built-in default.
func WithDefaultLeadDays(m map[types.Channel]int) Option {
	return func(e *Evaluator) {
		for c, d := range m {
			e.defaultLead[c] = d
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{defaultLead: make(map[types.Channel]int, len(DefaultLeadDays))}
	for c, d := range DefaultLeadDays {
		e.defaultLead[c] = d
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LeadDays resolves the reminder lead for channel at tier: the tier's own
// setting first, then the evaluator default.
func (e *Evaluator) LeadDays(tier types.Tier, channel types.Channel) int {
	if rule, ok := tier.Cadence[channel]; ok && rule.LeadDays != nil {
		return *rule.LeadDays
	}
	return e.defaultLead[channel]
}

// Evaluate computes the evaluation for one channel. tier is nil for an
// unassigned customer; lastContact is nil when the channel was never used.
func (e *Evaluator) Evaluate(tier *types.Tier, lastContact *time.Time, channel types.Channel, now time.Time) Evaluation {
	ev := Evaluation{Channel: channel}
	if tier == nil {
		ev.Reason = ReasonUnassigned
		return ev
	}
	ev.TierID = tier.ID

	rule, ok := tier.Cadence[channel]
	if !ok {
		ev.Reason = ReasonNoCadence
		return ev
	}
	ev.Evaluable = true
	ev.CadenceDays = rule.FrequencyDays
	ev.LeadDays = e.LeadDays(*tier, channel)

	if lastContact == nil {
		ev.NeverContacted = true
		ev.Overdue = true
		ev.InWindow = true
		return ev
	}

	// UTC has no DST, so AddDate steps whole 24-hour days.
	dueAt := lastContact.UTC().AddDate(0, 0, rule.FrequencyDays)
	ev.DueAt = &dueAt
	ev.DaysUntilDue = floorDays(dueAt.Sub(now))
	ev.Overdue = ev.DaysUntilDue < 0

	windowOpens := dueAt.AddDate(0, 0, -ev.LeadDays)
	ev.InWindow = ev.Overdue || !now.Before(windowOpens)
	return ev
}

// floorDays divides d by Day rounding toward negative infinity.
func floorDays(d time.Duration) int {
	q := d / Day
	if d%Day != 0 && d < 0 {
		q--
	}
	return int(q)
}

// TierSource resolves tiers by ID.
type TierSource interface {
	GetTier(ctx context.Context, id int) (types.Tier, error)
}

// LedgerSource reads tier assignments and last-contact times.
type LedgerSource interface {
	GetTierAssignment(ctx context.Context, customerID string) (int, bool, error)
	GetLastContact(ctx context.Context, customerID string, channel types.Channel) (time.Time, bool, error)
}

// EvaluatePair resolves the customer's tier and last contact, then evaluates
// channel at now.
func (e *Evaluator) EvaluatePair(ctx context.Context, tiers TierSource, ledger LedgerSource, customerID string, channel types.Channel, now time.Time) (Evaluation, error) {
	tier, err := resolveTier(ctx, tiers, ledger, customerID)
	if err != nil {
		return Evaluation{}, err
	}
	return e.evaluateWithLedger(ctx, ledger, tier, customerID, channel, now)
}

// EvaluateCustomer evaluates every channel configured on the customer's tier,
// in channel name order. An unassigned customer yields no evaluations.
func (e *Evaluator) EvaluateCustomer(ctx context.Context, tiers TierSource, ledger LedgerSource, customerID string, now time.Time) ([]Evaluation, error) {
	tier, err := resolveTier(ctx, tiers, ledger, customerID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, nil
	}
	return e.EvaluateTier(ctx, ledger, *tier, customerID, now)
}

// EvaluateTier evaluates every channel configured on tier for a customer
// already known to hold it.
func (e *Evaluator) EvaluateTier(ctx context.Context, ledger LedgerSource, tier types.Tier, customerID string, now time.Time) ([]Evaluation, error) {
	channels := tier.Channels()
	out := make([]Evaluation, 0, len(channels))
	for _, ch := range channels {
		ev, err := e.evaluateWithLedger(ctx, ledger, &tier, customerID, ch, now)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (e *Evaluator) evaluateWithLedger(ctx context.Context, ledger LedgerSource, tier *types.Tier, customerID string, channel types.Channel, now time.Time) (Evaluation, error) {
	var last *time.Time
	if tier != nil {
		if _, ok := tier.Cadence[channel]; ok {
			at, contacted, err := ledger.GetLastContact(ctx, customerID, channel)
			if err != nil {
				return Evaluation{}, err
			}
			if contacted {
				last = &at
			}
		}
	}
	ev := e.Evaluate(tier, last, channel, now)
	ev.CustomerID = customerID
	return ev, nil
}

func resolveTier(ctx context.Context, tiers TierSource, ledger LedgerSource, customerID string) (*types.Tier, error) {
	tierID, assigned, err := ledger.GetTierAssignment(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, nil
	}
	t, err := tiers.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
