package tiers

import (
	"context"
	"sort"
	"sync"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/types"
)

// Store persists tiers. Implementations return apperr.ErrNotFound for
// missing IDs and do no validation of their own.
type Store interface {
	Get(ctx context.Context, id int) (types.Tier, error)
	List(ctx context.Context) ([]types.Tier, error)
	Put(ctx context.Context, t types.Tier) error
	Delete(ctx context.Context, id int) error
}

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu    sync.RWMutex
	tiers map[int]types.Tier
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tiers: make(map[int]types.Tier)}
}

func (s *MemoryStore) Get(_ context.Context, id int) (types.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tiers[id]
	if !ok {
		return types.Tier{}, apperr.ErrNotFound
	}
	return cloneTier(t), nil
}

func (s *MemoryStore) List(_ context.Context) ([]types.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		out = append(out, cloneTier(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, t types.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[t.ID] = cloneTier(t)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tiers[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.tiers, id)
	return nil
}

// cloneTier copies the cadence map so callers cannot mutate stored state.
func cloneTier(t types.Tier) types.Tier {
	cadence := make(map[types.Channel]types.ChannelRule, len(t.Cadence))
	for c, r := range t.Cadence {
		if r.LeadDays != nil {
			lead := *r.LeadDays
			r.LeadDays = &lead
		}
		cadence[c] = r
	}
	t.Cadence = cadence
	return t
}
