package explorer

import (
	"sync"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// Snapshot is an immutable view of the result collections. Each collection
// holds the payload of the most recent applied response for its type.
type Snapshot struct {
	Active  domain.EntityType
	Sites   []domain.Locatable
	Items   []domain.Locatable
	Version uint64
}

// Displayed returns the collection of the active entity type.
func (s Snapshot) Displayed() []domain.Locatable {
	if s.Active == domain.EntitySites {
		return s.Sites
	}
	return s.Items
}

// Locatables returns the union of both collections, sites first.
func (s Snapshot) Locatables() []domain.Locatable {
	out := make([]domain.Locatable, 0, len(s.Sites)+len(s.Items))
	out = append(out, s.Sites...)
	return append(out, s.Items...)
}

// ResultStore holds the latest applied results per entity type. Writers
// replace a collection wholesale; readers always see a consistent snapshot.
type ResultStore struct {
	mu   sync.RWMutex
	snap Snapshot
	subs []func(Snapshot)
}

func NewResultStore(active domain.EntityType) *ResultStore {
	return &ResultStore{snap: Snapshot{Active: active}}
}

// Snapshot returns the current state. The slices must not be modified.
func (s *ResultStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Replace swaps the collection of type t for results.
func (s *ResultStore) Replace(t domain.EntityType, results []domain.Locatable) {
	cp := make([]domain.Locatable, len(results))
	copy(cp, results)

	s.mu.Lock()
	snap := s.snap
	if t == domain.EntitySites {
		snap.Sites = cp
	} else {
		snap.Items = cp
	}
	snap.Version++
	s.snap = snap
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// SetActive changes which collection is displayed.
func (s *ResultStore) SetActive(t domain.EntityType) {
	s.mu.Lock()
	if s.snap.Active == t {
		s.mu.Unlock()
		return
	}
	snap := s.snap
	snap.Active = t
	snap.Version++
	s.snap = snap
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Subscribe registers fn to be called with every new snapshot, on the
// writer's goroutine.
func (s *ResultStore) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs[:len(s.subs):len(s.subs)], fn)
}
