package explorer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

func TestResultStore_ReplaceIsPerType(t *testing.T) {
	s := NewResultStore(domain.EntityItems)
	s.Replace(domain.EntitySites, []domain.Locatable{site("1", "Deli", 0, 0)})
	s.Replace(domain.EntityItems, []domain.Locatable{item("2", "Cat", 0, 0), item("3", "Cat 2", 0, 0)})
	s.Replace(domain.EntityItems, []domain.Locatable{item("4", "Cat 3", 0, 0)})

	snap := s.Snapshot()
	require.Len(t, snap.Sites, 1)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "4", snap.Displayed()[0].Ref().ID)
	assert.EqualValues(t, 3, snap.Version)
}

func TestResultStore_SubscribersSeeCompleteSnapshot(t *testing.T) {
	s := NewResultStore(domain.EntityItems)
	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) {
		// re-entrant read from inside the notification
		assert.Equal(t, snap, s.Snapshot())
		seen = append(seen, snap)
	})

	s.Replace(domain.EntityItems, []domain.Locatable{item("1", "Cat", 0, 0)})
	s.SetActive(domain.EntitySites)
	s.SetActive(domain.EntitySites)

	require.Len(t, seen, 2)
	assert.Equal(t, domain.EntitySites, seen[1].Active)
	assert.Len(t, seen[1].Items, 1)
}

func TestResultStore_ReplaceCopiesInput(t *testing.T) {
	s := NewResultStore(domain.EntityItems)
	in := []domain.Locatable{item("1", "Cat", 0, 0)}
	s.Replace(domain.EntityItems, in)
	in[0] = item("2", "Other", 0, 0)

	assert.Equal(t, "1", s.Snapshot().Items[0].Ref().ID)
}

func TestResultStore_ConcurrentReaders(t *testing.T) {
	s := NewResultStore(domain.EntityItems)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := s.Snapshot()
				if len(snap.Items) != 0 && len(snap.Items) != 2 {
					t.Errorf("torn snapshot with %d items", len(snap.Items))
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		s.Replace(domain.EntityItems, []domain.Locatable{item("1", "A", 0, 0), item("2", "B", 0, 0)})
	}
	wg.Wait()
}
