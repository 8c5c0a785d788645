package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/ingest"
)

func TestRouter_RoutesPerRegion(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	router := ingest.NewRouter(ctx, store, ingest.Options{
		CheckInterval: time.Hour,
		MaxCached:     1, // every enqueue flushes immediately
		RetryInterval: time.Millisecond,
		DrainTimeout:  time.Second,
	})

	router.Add(1, []domain.Sample{sampleAt(10)})
	router.Add(2, []domain.Sample{sampleAt(20)})
	router.Add(1, []domain.Sample{sampleAt(11)})
	waitFor(t, func() bool { return store.committedCount() == 3 })

	cancel()
	require.NoError(t, router.Wait())

	// Each enqueue hit the size trigger of its own region's worker, so the
	// three samples arrive as three separate batches.
	assert.Len(t, store.committed(), 3)
}

func TestRouter_DrainsAllRegionsOnShutdown(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	router := ingest.NewRouter(ctx, store, ingest.Options{
		CheckInterval: time.Hour,
		MaxCached:     1_000_000,
		RetryInterval: time.Millisecond,
		DrainTimeout:  time.Second,
	})

	router.Add(1, []domain.Sample{sampleAt(10), sampleAt(11)})
	router.Add(2, []domain.Sample{sampleAt(20)})

	cancel()
	require.NoError(t, router.Wait())
	assert.Equal(t, 3, store.committedCount())
}
