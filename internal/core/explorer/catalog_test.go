package explorer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

func TestCatalog_ConcurrentLoadsShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	search := &fakeSearch{facetsFn: func(context.Context) (domain.Facets, error) {
		calls.Add(1)
		<-release
		return domain.Facets{Tags: []string{"Lazy"}}, nil
	}}
	c := NewCatalog(search)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := c.Load(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []string{"Lazy"}, f.Tags)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, time.Millisecond)
	// let the other callers join the in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCatalog_FailuresAreNotCached(t *testing.T) {
	fail := true
	search := &fakeSearch{facetsFn: func(context.Context) (domain.Facets, error) {
		if fail {
			return domain.Facets{}, errors.New("boom")
		}
		return domain.Facets{Categories: []string{"Tuxedo"}}, nil
	}}
	c := NewCatalog(search)

	_, err := c.Load(context.Background())
	require.Error(t, err)

	fail = false
	f, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Tuxedo"}, f.Categories)
}

func TestCatalog_CallerCancelDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	search := &fakeSearch{facetsFn: func(ctx context.Context) (domain.Facets, error) {
		close(started)
		select {
		case <-release:
			return domain.Facets{Categories: []string{"Calico"}}, nil
		case <-ctx.Done():
			return domain.Facets{}, ctx.Err()
		}
	}}
	c := NewCatalog(search)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Load(first)
		firstErr <- err
	}()
	<-started

	second := make(chan domain.Facets, 1)
	go func() {
		f, err := c.Load(context.Background())
		assert.NoError(t, err)
		second <- f
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case f := <-second:
		assert.Equal(t, []string{"Calico"}, f.Categories)
	case <-time.After(waitFor):
		t.Fatal("second caller did not get the shared result")
	}

	f, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Calico"}, f.Categories, "shared result is cached")
}
