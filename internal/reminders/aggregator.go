// Package reminders produces the prioritized follow-up worklist: every
// assigned customer's configured channels are evaluated concurrently, then
// partitioned into overdue and upcoming buckets and sorted.
package reminders

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/cadence"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/types"
)

// Skip reasons reported in Worklist.Skipped.
const (
	SkipCustomerVanished = "customer_vanished"
	SkipTierVanished     = "tier_vanished"
	SkipReadError        = "read_error"
	SkipDeadline         = "deadline"
)

// TierLister lists the tier snapshot for a pass.
type TierLister interface {
	ListTiers(ctx context.Context) ([]types.Tier, error)
}

// CustomerSource is the read side of the touchpoint ledger.
type CustomerSource interface {
	cadence.LedgerSource
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

// Aggregator computes worklists. It never mutates tiers or customers.
type Aggregator struct {
	tiers     TierLister
	customers CustomerSource
	eval      *cadence.Evaluator
	clock     clock.Clock
	workers   int
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Config configures an Aggregator.
type Config struct {
	Tiers     TierLister
	Customers CustomerSource
	Evaluator *cadence.Evaluator
	Clock     clock.Clock
	// Workers bounds concurrent customer reads. Defaults to 8.
	Workers int
	Logger  *zap.Logger
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		tiers:     cfg.Tiers,
		customers: cfg.Customers,
		eval:      cfg.Evaluator,
		clock:     cfg.Clock,
		workers:   cfg.Workers,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("github.com/matthewbaird/followup/internal/reminders"),
	}
	if a.eval == nil {
		a.eval = cadence.New()
	}
	if a.clock == nil {
		a.clock = clock.System{}
	}
	if a.workers <= 0 {
		a.workers = 8
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

type customerResult struct {
	evals []cadence.Evaluation
	skip  string
}

// Compute runs one aggregation pass. It always returns a worklist: customers
// that vanish mid-scan are skipped, read failures and an expired ctx mark the
// result Partial.
func (a *Aggregator) Compute(ctx context.Context) types.Worklist {
	ctx, span := a.tracer.Start(ctx, "reminders.scan")
	defer span.End()

	now := a.clock.Now()
	wl := types.Worklist{
		GeneratedAt: now,
		Overdue:     []types.Reminder{},
		Upcoming:    []types.Reminder{},
	}

	tierList, err := a.tiers.ListTiers(ctx)
	if err != nil {
		a.logger.Warn("listing tiers failed", zap.Error(err))
		wl.Partial = true
		span.RecordError(err)
		return wl
	}
	tierByID := make(map[int]types.Tier, len(tierList))
	for _, t := range tierList {
		tierByID[t.ID] = t
	}

	ids, err := a.customers.ListCustomerIDs(ctx)
	if err != nil {
		a.logger.Warn("listing customers failed", zap.Error(err))
		wl.Partial = true
		span.RecordError(err)
		return wl
	}
	sort.Strings(ids)

	results := make([]customerResult, len(ids))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, id := range ids {
		if ctx.Err() != nil {
			for j := i; j < len(ids); j++ {
				results[j].skip = SkipDeadline
			}
			break
		}
		g.Go(func() error {
			results[i] = a.evaluateCustomer(ctx, tierByID, id, now)
			return nil
		})
	}
	_ = g.Wait()

	var evals []cadence.Evaluation
	for i, r := range results {
		if r.skip != "" {
			wl.Skipped = append(wl.Skipped, types.SkippedCustomer{CustomerID: ids[i], Reason: r.skip})
			if r.skip == SkipReadError || r.skip == SkipDeadline {
				wl.Partial = true
			}
			continue
		}
		evals = append(evals, r.evals...)
	}

	wl.Overdue, wl.Upcoming = Partition(evals)
	wl.OverdueCount = len(wl.Overdue)
	wl.UpcomingCount = len(wl.Upcoming)

	span.SetAttributes(
		attribute.Int("customers", len(ids)),
		attribute.Int("overdue", wl.OverdueCount),
		attribute.Int("upcoming", wl.UpcomingCount),
		attribute.Int("skipped", len(wl.Skipped)),
		attribute.Bool("partial", wl.Partial),
	)
	return wl
}

func (a *Aggregator) evaluateCustomer(ctx context.Context, tierByID map[int]types.Tier, customerID string, now time.Time) customerResult {
	if ctx.Err() != nil {
		return customerResult{skip: SkipDeadline}
	}
	tierID, assigned, err := a.customers.GetTierAssignment(ctx, customerID)
	if err != nil {
		return a.skipFor(ctx, customerID, err)
	}
	if !assigned {
		return customerResult{}
	}
	tier, ok := tierByID[tierID]
	if !ok {
		return customerResult{skip: SkipTierVanished}
	}
	evals, err := a.eval.EvaluateTier(ctx, a.customers, tier, customerID, now)
	if err != nil {
		return a.skipFor(ctx, customerID, err)
	}
	return customerResult{evals: evals}
}

func (a *Aggregator) skipFor(ctx context.Context, customerID string, err error) customerResult {
	switch {
	case apperr.IsNotFound(err):
		return customerResult{skip: SkipCustomerVanished}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return customerResult{skip: SkipDeadline}
	default:
		a.logger.Warn("reading customer failed", zap.String("customer_id", customerID), zap.Error(err))
		return customerResult{skip: SkipReadError}
	}
}

// Partition splits evaluations into the overdue and upcoming buckets and
// sorts both. Evaluations that are not evaluable or outside the reminder
// window are dropped.
func Partition(evals []cadence.Evaluation) (overdue, upcoming []types.Reminder) {
	overdue = []types.Reminder{}
	upcoming = []types.Reminder{}
	for _, ev := range evals {
		switch {
		case !ev.Evaluable:
		case ev.Overdue:
			overdue = append(overdue, ev.Reminder())
		case ev.InWindow:
			upcoming = append(upcoming, ev.Reminder())
		}
	}
	SortOverdue(overdue)
	SortUpcoming(upcoming)
	return overdue, upcoming
}

// SortUpcoming orders by days until due, then channel, then customer ID.
func SortUpcoming(rs []types.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.DaysUntilDue != b.DaysUntilDue {
			return a.DaysUntilDue < b.DaysUntilDue
		}
		return tieBreak(a, b)
	})
}

// SortOverdue orders oldest deadline first. Never-contacted pairs have no
// deadline and sort ahead of everything else.
func SortOverdue(rs []types.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		switch {
		case a.DueAt == nil && b.DueAt != nil:
			return true
		case a.DueAt != nil && b.DueAt == nil:
			return false
		case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
			return a.DueAt.Before(*b.DueAt)
		}
		return tieBreak(a, b)
	})
}

func tieBreak(a, b types.Reminder) bool {
	if a.Channel != b.Channel {
		return a.Channel < b.Channel
	}
	return a.CustomerID < b.CustomerID
}
