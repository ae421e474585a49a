// Package event provides domain events for contact logging and tier changes.
// Contact events are applied to the touchpoint ledger, then published to the
// in-process event bus for downstream consumers (history, refresh, logging).
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/matthewbaird/followup/internal/types"
)

// Recorder applies a domain event and publishes it.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// ContactWriter is the write side of the touchpoint ledger.
type ContactWriter interface {
	RecordContact(ctx context.Context, customerID string, channel types.Channel, at time.Time) error
}

// ContactRecorder implements Recorder. Contact events are written to the
// ledger first; the event is published only after that write succeeds, so a
// rejected contact (future timestamp, unknown channel) never reaches
// consumers. Non-contact events are published as-is.
type ContactRecorder struct {
	ledger ContactWriter
	bus    Publisher
}

// NewContactRecorder creates a new ContactRecorder backed by the ledger.
func NewContactRecorder(ledger ContactWriter) *ContactRecorder {
	return &ContactRecorder{ledger: ledger}
}

// SetPublisher attaches an event bus. Events are published after ledger writes.
func (r *ContactRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

// Record applies evt and publishes it.
func (r *ContactRecorder) Record(ctx context.Context, evt DomainEvent) error {
	if ch, ok := ChannelForEventType(evt.EventType); ok {
		p, ok := DecodeContact(evt)
		if !ok {
			return fmt.Errorf("decoding %s payload", evt.EventType)
		}
		if p.Channel == "" {
			p.Channel = ch
		}
		if err := r.ledger.RecordContact(ctx, p.CustomerID, p.Channel, p.ContactedAt); err != nil {
			return err
		}
	}

	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}

// RecordContact builds the contact event for p and records it.
func (r *ContactRecorder) RecordContact(ctx context.Context, p ContactPayload) (DomainEvent, error) {
	evt, err := NewContact(p)
	if err != nil {
		return DomainEvent{}, err
	}
	if err := r.Record(ctx, evt); err != nil {
		return DomainEvent{}, err
	}
	return evt, nil
}
