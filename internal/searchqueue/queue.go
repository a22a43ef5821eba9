// Package searchqueue hands retry work from producers to a single search
// consumer. Producers never block.
package searchqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/metrics"
)

// RetryItem asks the searcher to look for a new release of an episode.
type RetryItem struct {
	ShowID  int64
	Season  int
	Episode int
	// Forced items are searched even if the episode was searched recently.
	Forced bool
}

func (i RetryItem) String() string {
	return fmt.Sprintf("%d S%02dE%02d", i.ShowID, i.Season, i.Episode)
}

// Handler processes one item.
type Handler func(ctx context.Context, item RetryItem) error

// Queue is an unbounded FIFO of RetryItems.
type Queue struct {
	mu      sync.Mutex
	items   []RetryItem
	pending map[RetryItem]struct{}
	notify  chan struct{}

	metrics *metrics.Service
	logger  zerolog.Logger
}

// New creates an empty queue. m may be nil.
func New(m *metrics.Service, logger zerolog.Logger) *Queue {
	return &Queue{
		pending: make(map[RetryItem]struct{}),
		notify:  make(chan struct{}, 1),
		metrics: m,
		logger:  logger.With().Str("component", "searchqueue").Logger(),
	}
}

// Put appends item unless an identical item is still waiting. It reports
// whether the item was added.
func (q *Queue) Put(item RetryItem) bool {
	q.mu.Lock()
	if _, dup := q.pending[item]; dup {
		q.mu.Unlock()
		return false
	}
	q.pending[item] = struct{}{}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of waiting items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run hands items to h in order until ctx is cancelled. Handler errors are
// logged and do not stop the loop.
func (q *Queue) Run(ctx context.Context, h Handler) {
	for {
		item, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		if err := ctx.Err(); err != nil {
			return
		}

		if err := h(ctx, item); err != nil {
			q.logger.Error().Err(err).Stringer("item", item).Msg("Search queue item failed")
		}
	}
}

func (q *Queue) pop() (RetryItem, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return RetryItem{}, false
	}
	item := q.items[0]
	q.items[0] = RetryItem{}
	q.items = q.items[1:]
	delete(q.pending, item)
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	return item, true
}
