package bridge

import "github.com/haasonsaas/tau/pkg/models"

// eventQueue is a bounded in-memory FIFO. Overflow is reported to the
// caller rather than silently dropped: the event simply stays
// undiscovered and is rediscovered on the next poll cycle.
type eventQueue struct {
	limit int
	items []models.BridgeEvent
}

func newEventQueue(limit int) *eventQueue {
	if limit <= 0 {
		limit = 1
	}
	return &eventQueue{limit: limit}
}

// offer appends event if capacity remains, reporting whether it was
// accepted.
func (q *eventQueue) offer(event models.BridgeEvent) bool {
	if len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, event)
	return true
}

// drain returns and clears all queued events, in FIFO order.
func (q *eventQueue) drain() []models.BridgeEvent {
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) depth() int {
	return len(q.items)
}

// processedRing is a bounded FIFO of event keys used to dedupe events
// across poll cycles (spec glossary: "processed event ring").
type processedRing struct {
	capacity int
	order    []string
	seen     map[string]bool
}

func newProcessedRing(capacity int) *processedRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &processedRing{capacity: capacity, seen: make(map[string]bool, capacity)}
}

// contains reports whether key has already been processed.
func (r *processedRing) contains(key string) bool {
	return r.seen[key]
}

// add records key as processed, evicting the oldest entry if the ring
// is at capacity.
func (r *processedRing) add(key string) {
	if r.seen[key] {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.order = append(r.order, key)
	r.seen[key] = true
}

func (r *processedRing) snapshot() []string {
	return append([]string(nil), r.order...)
}

// restoreProcessedRing rebuilds a ring from a persisted key slice,
// oldest first, used to resume dedupe state across process restarts.
func restoreProcessedRing(capacity int, keys []string) *processedRing {
	ring := newProcessedRing(capacity)
	for _, k := range keys {
		ring.add(k)
	}
	return ring
}
