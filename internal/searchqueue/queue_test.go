package searchqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PutDeduplicatesPending(t *testing.T) {
	q := New(nil, zerolog.Nop())
	item := RetryItem{ShowID: 1, Season: 1, Episode: 2, Forced: true}

	assert.True(t, q.Put(item))
	assert.False(t, q.Put(item))
	assert.True(t, q.Put(RetryItem{ShowID: 1, Season: 1, Episode: 3, Forced: true}))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_PutNeverBlocks(t *testing.T) {
	q := New(nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			q.Put(RetryItem{ShowID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Put blocked without a consumer")
	}
	assert.Equal(t, 10000, q.Len())
}

func TestQueue_RunFIFO(t *testing.T) {
	q := New(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []int
	)
	handled := make(chan struct{}, 10)

	for ep := 1; ep <= 3; ep++ {
		q.Put(RetryItem{ShowID: 1, Season: 1, Episode: ep})
	}

	go q.Run(ctx, func(_ context.Context, item RetryItem) error {
		mu.Lock()
		got = append(got, item.Episode)
		mu.Unlock()
		handled <- struct{}{}
		if item.Episode == 2 {
			return errors.New("search failed")
		}
		return nil
	})

	// Items added while the consumer waits are picked up.
	for range 3 {
		<-handled
	}
	q.Put(RetryItem{ShowID: 1, Season: 1, Episode: 4})
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not pick up late item")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	q := New(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		q.Run(ctx, func(context.Context, RetryItem) error { return nil })
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
