package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/types"
)

type memCustomer struct {
	displayName string
	tierID      *int
	contacts    map[types.Channel]time.Time
}

// MemoryStore implements Store in memory.
// Used by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*memCustomer
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{customers: make(map[string]*memCustomer)}
}

func (s *MemoryStore) Contact(_ context.Context, customerID string, channel types.Channel) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return time.Time{}, false, apperr.ErrNotFound
	}
	at, ok := c.contacts[channel]
	return at, ok, nil
}

func (s *MemoryStore) PutContact(_ context.Context, customerID string, channel types.Channel, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(customerID)
	if prev, ok := c.contacts[channel]; ok && !at.After(prev) {
		return nil
	}
	c.contacts[channel] = at
	return nil
}

func (s *MemoryStore) Assignment(_ context.Context, customerID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return 0, false, apperr.ErrNotFound
	}
	if c.tierID == nil {
		return 0, false, nil
	}
	return *c.tierID, true, nil
}

func (s *MemoryStore) SetAssignment(_ context.Context, customerID string, tierID *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return apperr.ErrNotFound
	}
	if tierID == nil {
		c.tierID = nil
		return nil
	}
	id := *tierID
	c.tierID = &id
	return nil
}

func (s *MemoryStore) Customer(_ context.Context, customerID string) (types.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return types.Customer{}, apperr.ErrNotFound
	}
	out := types.Customer{
		ID:          customerID,
		DisplayName: c.displayName,
		Touchpoints: make(map[types.Channel]types.TouchpointRecord, len(c.contacts)),
	}
	if c.tierID != nil {
		id := *c.tierID
		out.TierID = &id
	}
	for ch, at := range c.contacts {
		at := at
		out.Touchpoints[ch] = types.TouchpointRecord{CustomerID: customerID, Channel: ch, LastContactedAt: &at}
	}
	return out, nil
}

func (s *MemoryStore) PutCustomer(_ context.Context, customerID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(customerID).displayName = displayName
	return nil
}

func (s *MemoryStore) CustomerIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) CountByTier(_ context.Context, tierID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.customers {
		if c.tierID != nil && *c.tierID == tierID {
			n++
		}
	}
	return n, nil
}

// Remove drops a customer entirely. The engine itself never deletes
// customers; this exists for the external CRM sync and for tests that
// simulate a customer vanishing mid-scan.
func (s *MemoryStore) Remove(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, customerID)
}

// getOrCreate must be called with the write lock held.
func (s *MemoryStore) getOrCreate(customerID string) *memCustomer {
	c, ok := s.customers[customerID]
	if !ok {
		c = &memCustomer{contacts: make(map[types.Channel]time.Time)}
		s.customers[customerID] = c
	}
	return c
}
