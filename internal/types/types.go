// Package types provides the Go structs shared by the tiering and cadence
// packages. These are the wire shapes exposed over the JSON API as well as the
// values stored by the tier registry and the touchpoint ledger.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Channel is a contact channel a tier can carry a cadence for.
type Channel string

const (
	ChannelVisit   Channel = "visit"
	ChannelEmail   Channel = "email"
	ChannelPhone   Channel = "phone"
	ChannelMessage Channel = "message"
)

// Channels lists every known channel in name order.
var Channels = []Channel{ChannelEmail, ChannelMessage, ChannelPhone, ChannelVisit}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVisit, ChannelEmail, ChannelPhone, ChannelMessage:
		return true
	}
	return false
}

// ParseChannel converts a raw string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Money represents a monetary amount using integer cents to eliminate
// floating-point errors in order-value thresholds.
type Money struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"` // ISO 4217, e.g. "USD"
}

// MaxCadenceDays bounds FrequencyDays and LeadDays so due dates stay within
// the range time.Duration can measure from now.
const MaxCadenceDays = 36500

// ChannelRule is the cadence for one channel at one tier.
type ChannelRule struct {
	FrequencyDays int  `json:"frequency_days"`
	LeadDays      *int `json:"lead_days,omitempty"` // nil: channel default
}

// Qualification holds the trailing-year thresholds a customer must clear to
// hold a tier. Both thresholds must be met; Expression, when set, is an
// additional CEL predicate over order_count and order_value_cents.
type Qualification struct {
	MinAnnualValue  Money  `json:"min_annual_value"`
	MinAnnualOrders int    `json:"min_annual_orders"`
	Expression      string `json:"expression,omitempty"`
}

// Tier is one customer-value bucket. Higher IDs are higher priority.
type Tier struct {
	ID            int                     `json:"id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description,omitempty"`
	Cadence       map[Channel]ChannelRule `json:"cadence"`
	Qualification Qualification           `json:"qualification"`
}

// Channels returns the channels configured on the tier in name order.
func (t Tier) Channels() []Channel {
	out := make([]Channel, 0, len(t.Cadence))
	for c := range t.Cadence {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TouchpointRecord is one channel's most recent contact for one customer.
type TouchpointRecord struct {
	CustomerID      string     `json:"customer_id"`
	Channel         Channel    `json:"channel"`
	LastContactedAt *time.Time `json:"last_contacted_at"` // nil: never contacted
}

// Customer is the ledger's view of a CRM customer.
type Customer struct {
	ID          string                       `json:"id"`
	DisplayName string                       `json:"display_name,omitempty"`
	TierID      *int                         `json:"tier_id"`
	Touchpoints map[Channel]TouchpointRecord `json:"touchpoints"`
}

// Reminder is one (customer, channel) pair that is due soon or overdue.
type Reminder struct {
	CustomerID     string     `json:"customer_id"`
	Channel        Channel    `json:"channel"`
	TierID         int        `json:"tier_id"`
	DueAt          *time.Time `json:"due_at"`
	DaysUntilDue   int        `json:"days_until_due"`
	NeverContacted bool       `json:"never_contacted"`
}

// SkippedCustomer records a customer dropped from a worklist pass.
type SkippedCustomer struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
}

// Worklist is the output of one reminder aggregation pass.
type Worklist struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Overdue       []Reminder        `json:"overdue"`
	Upcoming      []Reminder        `json:"upcoming"`
	OverdueCount  int               `json:"overdue_count"`
	UpcomingCount int               `json:"upcoming_count"`
	Partial       bool              `json:"partial"`
	Skipped       []SkippedCustomer `json:"skipped,omitempty"`
}

// OrderMetrics are a customer's trailing 12-month order figures.
type OrderMetrics struct {
	AnnualOrders int   `json:"annual_orders"`
	AnnualValue  Money `json:"annual_value"`
}

// SourceRef is a typed reference from an activity entry to the entity it
// concerns.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "actor", "context"
}

// ActivityEntry is one contact event in a customer's history. The ledger keeps
// only the latest contact per channel; the activity log keeps every one.
type ActivityEntry struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	CustomerID string          `json:"customer_id"`
	Channel    Channel         `json:"channel"`
	SourceRefs []SourceRef     `json:"source_refs"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
