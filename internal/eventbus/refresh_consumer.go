package eventbus

import (
	"context"

	"github.com/matthewbaird/followup/internal/event"
)

// Trigger requests an early worklist pass. It must not block.
type Trigger interface {
	Trigger()
}

// RefreshConsumer asks the scheduler for a fresh worklist whenever an event
// can change one: a contact, an assignment, or a tier definition change.
type RefreshConsumer struct {
	trigger Trigger
}

func NewRefreshConsumer(t Trigger) *RefreshConsumer {
	return &RefreshConsumer{trigger: t}
}

func (c *RefreshConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	switch evt.Category {
	case "contact", "tier":
		c.trigger.Trigger()
	}
	return nil
}
