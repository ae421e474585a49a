package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"event_type"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AffectedEntities []types.SourceRef `json:"affected_entities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "contact", "tier"
	Payload          json.RawMessage   `json:"payload"`
}

// Contact event types, one per channel.
const (
	TypeVisitLogged  = "visit_logged"
	TypeEmailSent    = "email_sent"
	TypeCallMade     = "call_made"
	TypeMessageSent  = "message_sent"
	TypeTierAssigned = "tier_assigned"
	TypeTierChanged  = "tier_changed"
	TypeTierDeleted  = "tier_deleted"
)

var contactTypes = map[types.Channel]string{
	types.ChannelVisit:   TypeVisitLogged,
	types.ChannelEmail:   TypeEmailSent,
	types.ChannelPhone:   TypeCallMade,
	types.ChannelMessage: TypeMessageSent,
}

// ChannelForEventType maps a contact event type back to its channel.
func ChannelForEventType(eventType string) (types.Channel, bool) {
	for ch, et := range contactTypes {
		if et == eventType {
			return ch, true
		}
	}
	return "", false
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ── Contact events ───────────────────────────────────────────────────────────

// ContactPayload carries event-specific data for every contact event.
type ContactPayload struct {
	CustomerID  string        `json:"customer_id"`
	Channel     types.Channel `json:"channel"`
	ContactedAt time.Time     `json:"contacted_at"`
	Actor       string        `json:"actor,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// NewContact builds the contact event for p.Channel. It fails with a
// *apperr.ValidationError for unknown channels.
func NewContact(p ContactPayload) (DomainEvent, error) {
	et, ok := contactTypes[p.Channel]
	if !ok {
		ve := &apperr.ValidationError{}
		ve.Add("channel", "unknown channel %q", p.Channel)
		return DomainEvent{}, ve
	}
	refs := []types.SourceRef{{EntityType: "customer", EntityID: p.CustomerID, Role: "subject"}}
	if p.Actor != "" {
		refs = append(refs, types.SourceRef{EntityType: "user", EntityID: p.Actor, Role: "actor"})
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        et,
		OccurredAt:       p.ContactedAt,
		AffectedEntities: refs,
		Summary:          contactSummary(p),
		Category:         "contact",
		Payload:          mustJSON(p),
	}, nil
}

func contactSummary(p ContactPayload) string {
	switch p.Channel {
	case types.ChannelVisit:
		return fmt.Sprintf("Visit logged with %s", p.CustomerID)
	case types.ChannelEmail:
		return fmt.Sprintf("Email sent to %s", p.CustomerID)
	case types.ChannelPhone:
		return fmt.Sprintf("Call made to %s", p.CustomerID)
	default:
		return fmt.Sprintf("Message sent to %s", p.CustomerID)
	}
}

// DecodeContact extracts the contact payload from a contact event.
func DecodeContact(evt DomainEvent) (ContactPayload, bool) {
	if _, ok := ChannelForEventType(evt.EventType); !ok {
		return ContactPayload{}, false
	}
	var p ContactPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return ContactPayload{}, false
	}
	return p, true
}

// ── Tier events ──────────────────────────────────────────────────────────────

// TierAssignedPayload carries event-specific data for TierAssigned.
type TierAssignedPayload struct {
	CustomerID     string `json:"customer_id"`
	PreviousTierID *int   `json:"previous_tier_id"`
	TierID         *int   `json:"tier_id"`
}

func NewTierAssigned(p TierAssignedPayload, at time.Time) DomainEvent {
	summary := fmt.Sprintf("Customer %s unassigned from tiers", p.CustomerID)
	if p.TierID != nil {
		summary = fmt.Sprintf("Customer %s assigned to tier %d", p.CustomerID, *p.TierID)
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeTierAssigned,
		OccurredAt:       at,
		AffectedEntities: []types.SourceRef{{EntityType: "customer", EntityID: p.CustomerID, Role: "subject"}},
		Summary:          summary,
		Category:         "tier",
		Payload:          mustJSON(p),
	}
}

// NewTierChanged reports an upserted tier definition.
func NewTierChanged(t types.Tier, at time.Time) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeTierChanged,
		OccurredAt:       at,
		AffectedEntities: []types.SourceRef{{EntityType: "tier", EntityID: fmt.Sprint(t.ID), Role: "subject"}},
		Summary:          fmt.Sprintf("Tier %d (%s) updated", t.ID, t.Name),
		Category:         "tier",
		Payload:          mustJSON(t),
	}
}

// NewTierDeleted reports a deleted tier.
func NewTierDeleted(id int, at time.Time) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeTierDeleted,
		OccurredAt:       at,
		AffectedEntities: []types.SourceRef{{EntityType: "tier", EntityID: fmt.Sprint(id), Role: "subject"}},
		Summary:          fmt.Sprintf("Tier %d deleted", id),
		Category:         "tier",
		Payload:          mustJSON(map[string]int{"tier_id": id}),
	}
}
