package activity

import (
	"context"
	"sort"
	"sync"

	"github.com/matthewbaird/followup/internal/types"
)

// MemoryStore implements Store using in-memory slices.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.ActivityEntry
	seen    map[string]bool
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := e.CustomerID + "|" + e.EventID
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) QueryByCustomer(_ context.Context, customerID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, hasCursor := opts.cursor()
	var matched []types.ActivityEntry
	for _, e := range s.entries {
		if e.CustomerID != customerID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Channels) > 0 && !containsChannel(opts.Channels, e.Channel) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest millisecond first, event ID breaks ties.
	sort.Slice(matched, func(i, j int) bool {
		mi, mj := matched[i].OccurredAt.UnixMilli(), matched[j].OccurredAt.UnixMilli()
		if mi != mj {
			return mi > mj
		}
		return matched[i].EventID < matched[j].EventID
	})
	totalCount := len(matched)

	if hasCursor {
		kept := matched[:0]
		for _, e := range matched {
			if cursor.after(e) {
				kept = append(kept, e)
			}
		}
		matched = kept
	}

	var nextCursor string
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
		nextCursor = cursorAfter(matched[len(matched)-1])
	}
	return matched, nextCursor, totalCount, nil
}

func containsChannel(list []types.Channel, c types.Channel) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
