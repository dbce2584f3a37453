package realtime

import (
	"context"
	"log"
	"sync"
	"time"
)

// RefreshFunc reloads one entity after its feed reported changes.
type RefreshFunc func(ctx context.Context, key string) error

// RefreshQueue coalesces repeated "refresh this key" requests: N enqueues of
// the same key inside one debounce window flush as a single refresh call.
// Intra-window arrival order is deliberately discarded; only membership in
// the pending set survives.
type RefreshQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	delay   time.Duration
	refresh RefreshFunc
}

func NewRefreshQueue(delay time.Duration, refresh RefreshFunc) *RefreshQueue {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	return &RefreshQueue{
		pending: make(map[string]struct{}),
		delay:   delay,
		refresh: refresh,
	}
}

// Enqueue marks key as needing a refresh and arms the flush timer if one is
// not already running.
func (q *RefreshQueue) Enqueue(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[key] = struct{}{}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.delay, q.flush)
	}
}

// flush swaps out the pending set and refreshes each key in parallel. A
// panicking or failing key is isolated: it neither blocks its siblings nor
// poisons future enqueues.
func (q *RefreshQueue) flush() {
	q.mu.Lock()
	keys := q.pending
	q.pending = make(map[string]struct{})
	q.timer = nil
	q.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	var wg sync.WaitGroup
	for key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("realtime: refresh %s panicked: %v", key, r)
				}
			}()
			if err := q.refresh(context.Background(), key); err != nil {
				log.Printf("realtime: refresh %s: %v", key, err)
			}
		}(key)
	}
	wg.Wait()
}

// Clear cancels the pending timer and drops all queued keys. Used on manual
// teardown.
func (q *RefreshQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = make(map[string]struct{})
}

// PendingCount reports how many keys await the next flush.
func (q *RefreshQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
