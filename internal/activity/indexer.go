package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/types"
)

// Indexer consumes domain events and appends customer history entries.
// Contact events and tier assignments are indexed; tier definition events
// have no customer subject and are ignored.
type Indexer struct {
	store Store
}

// NewIndexer creates a new activity indexer.
func NewIndexer(store Store) *Indexer {
	return &Indexer{store: store}
}

// HandleEvent implements eventbus.Handler.
func (idx *Indexer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	entries, err := idx.entriesFor(evt)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return idx.store.WriteEntries(ctx, entries)
}

func (idx *Indexer) entriesFor(evt event.DomainEvent) ([]types.ActivityEntry, error) {
	var customerID string
	var channel types.Channel

	switch {
	case evt.Category == "contact":
		p, ok := event.DecodeContact(evt)
		if !ok {
			return nil, fmt.Errorf("decoding %s payload", evt.EventType)
		}
		customerID, channel = p.CustomerID, p.Channel
	case evt.EventType == event.TypeTierAssigned:
		var p event.TierAssignedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", evt.EventType, err)
		}
		customerID = p.CustomerID
	default:
		return nil, nil
	}
	if customerID == "" {
		return nil, nil
	}

	return []types.ActivityEntry{{
		EventID:    evt.ID,
		EventType:  evt.EventType,
		OccurredAt: evt.OccurredAt.UTC(),
		CustomerID: customerID,
		Channel:    channel,
		SourceRefs: evt.AffectedEntities,
		Summary:    evt.Summary,
		Payload:    evt.Payload,
	}}, nil
}
