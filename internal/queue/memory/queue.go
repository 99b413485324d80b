// Package memory provides the in-process work queue for a crawl run.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

var errEnqueueClosed = errors.New("enqueue on closed queue")

// Queue is a bounded in-memory queue with context-aware operations. A run
// seeds it once and closes it; workers drain it until ErrQueueClosed.
type Queue struct {
	ch     chan crawler.SitemapEntry
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.SitemapEntry, capacity),
	}
}

// Enqueue pushes an entry into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, entry crawler.SitemapEntry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errEnqueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- entry:
		return nil
	}
}

// Dequeue pops the next entry, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.SitemapEntry, error) {
	select {
	case <-ctx.Done():
		return crawler.SitemapEntry{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case entry, ok := <-q.ch:
		if !ok {
			return crawler.SitemapEntry{}, crawler.ErrQueueClosed
		}
		return entry, nil
	}
}

// Len reports how many entries are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting entries. Queued entries remain available.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
