package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/snapflow/snapflow/internal/models"
)

// Item is the ephemeral in-memory record of a due post awaiting a
// publish attempt. It is never persisted.
type Item struct {
	PostID       int64
	ScheduledFor time.Time
	RetryCount   int
	Priority     int // whole minutes late, frozen at admission
	EnqueuedAt   time.Time
}

type Stats struct {
	Pending          int
	InFlight         int
	ReleasedInWindow int
	WindowStart      time.Time
}

// PublishQueue orders due posts by lateness and meters their release:
// at most maxConcurrent posts in flight, at most rateLimit releases per
// wall-clock minute. A post id is held by at most one pending or
// in-flight entry at a time.
type PublishQueue struct {
	mu sync.Mutex

	maxConcurrent int
	rateLimit     int

	pending  itemHeap
	queued   map[int64]*Item
	inFlight map[int64]struct{}

	released    int
	windowStart time.Time

	now func() time.Time
}

type Option func(*PublishQueue)

// WithClock replaces the queue's time source. Used by tests to drive
// the rate-limit window deterministically.
func WithClock(now func() time.Time) Option {
	return func(q *PublishQueue) { q.now = now }
}

func NewPublishQueue(maxConcurrent, rateLimit int, opts ...Option) *PublishQueue {
	q := &PublishQueue{
		maxConcurrent: maxConcurrent,
		rateLimit:     rateLimit,
		queued:        make(map[int64]*Item),
		inFlight:      make(map[int64]struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.windowStart = q.now().Truncate(time.Minute)
	return q
}

// Add admits a due post, computing its priority from current lateness.
// Returns false without re-adding when the post is already pending or
// in flight.
func (q *PublishQueue) Add(post *models.ScheduledPost) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[post.ID]; ok {
		return false
	}
	if _, ok := q.inFlight[post.ID]; ok {
		return false
	}

	now := q.now()
	item := &Item{
		PostID:       post.ID,
		ScheduledFor: post.ScheduledFor,
		RetryCount:   post.RetryCount,
		Priority:     post.Lateness(now),
		EnqueuedAt:   now,
	}
	heap.Push(&q.pending, item)
	q.queued[post.ID] = item
	return true
}

// GetNext releases the most overdue pending item, or returns false when
// the queue is empty or either cap is currently exhausted. A released
// item occupies a processing slot until MarkProcessed or Remove.
func (q *PublishQueue) GetNext() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollWindow()

	if len(q.pending) == 0 {
		return nil, false
	}
	if len(q.inFlight) >= q.maxConcurrent {
		return nil, false
	}
	if q.released >= q.rateLimit {
		return nil, false
	}

	item := heap.Pop(&q.pending).(*Item)
	delete(q.queued, item.PostID)
	q.inFlight[item.PostID] = struct{}{}
	q.released++
	return item, true
}

// MarkProcessed frees the processing slot for a settled attempt. The
// success flag is accepted for symmetry with the publisher's result;
// slot accounting does not depend on it.
func (q *PublishQueue) MarkProcessed(postID int64, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, postID)
}

// Remove drops a pending entry, e.g. when the post was cancelled while
// queued. In-flight entries are owned by the publisher and are not
// removable; callers get false for those and for unknown ids.
func (q *PublishQueue) Remove(postID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.queued[postID]
	if !ok {
		return false
	}
	delete(q.queued, postID)
	for i, it := range q.pending {
		if it == item {
			heap.Remove(&q.pending, i)
			break
		}
	}
	return true
}

func (q *PublishQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollWindow()
	return Stats{
		Pending:          len(q.pending),
		InFlight:         len(q.inFlight),
		ReleasedInWindow: q.released,
		WindowStart:      q.windowStart,
	}
}

// rollWindow resets the release counter when the wall clock has crossed
// a minute boundary. The fixed boundary can admit up to 2x the limit
// across a straddling burst; accepted for the scale this queue serves.
// Callers must hold q.mu.
func (q *PublishQueue) rollWindow() {
	if window := q.now().Truncate(time.Minute); window.After(q.windowStart) {
		q.windowStart = window
		q.released = 0
	}
}

// itemHeap orders by priority descending (most overdue first), with
// earlier scheduled_for winning ties.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ScheduledFor.Before(h[j].ScheduledFor)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(*Item))
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
