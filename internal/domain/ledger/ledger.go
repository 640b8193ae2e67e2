// Package ledger tracks threshold-notification conditions so a sustained
// condition fires at most once, re-arming only after it clears.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Ledger records per-key condition state for idempotent notification
// dispatch. A key is typically "<opportunityID>|<template>".
type Ledger interface {
	// Observe records the current truth of the condition for key and
	// reports whether a notification should fire now. It returns true
	// exactly once per sustained run of true observations; a false
	// observation re-arms the key.
	Observe(ctx context.Context, key string, holds bool) bool

	// Baseline returns the stored reference value for key, if any.
	Baseline(ctx context.Context, key string) (float64, bool)

	// SetBaseline stores the reference value the condition is judged
	// against (e.g. the last notified price).
	SetBaseline(ctx context.Context, key string, v float64)

	// Forget drops all state for key, e.g. after an opportunity closes.
	Forget(ctx context.Context, key string)

	Size() int64
}

// node is a single keyed condition entry in the eviction list.
type node struct {
	key         string
	fired       bool
	baseline    float64
	hasBaseline bool
	lastFiredAt time.Time
	next        *node
}

// reset clears the node state for reuse.
func (n *node) reset() {
	*n = node{}
}

// inMemoryLedger implements Ledger with a map plus a linked list for
// oldest-entry eviction in bounded mode. For maxSize <= 0 it is unbounded.
type inMemoryLedger struct {
	mu       sync.Mutex
	entries  map[string]*node
	head     *node // most recently inserted
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
	now      func() time.Time
}

// NewInMemoryLedger creates a new in-memory ledger with configuration options.
func NewInMemoryLedger(opts ...Option) Ledger {
	l := &inMemoryLedger{
		maxSize: 50000, // default max size
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = make(map[string]*node)
	l.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return l
}

// get returns the node for key, creating it if needed. Must be called with
// l.mu held.
func (l *inMemoryLedger) get(key string) *node {
	if n, ok := l.entries[key]; ok {
		return n
	}
	if l.maxSize > 0 && len(l.entries) >= l.maxSize {
		l.evictOldest()
	}
	n := l.nodePool.Get().(*node)
	n.key = key
	n.next = l.head
	l.head = n
	l.entries[key] = n
	l.size.Add(1)
	return n
}

// Observe implements Ledger.
func (l *inMemoryLedger) Observe(ctx context.Context, key string, holds bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.get(key)
	if !holds {
		// Condition cleared: re-arm.
		n.fired = false
		return false
	}
	if n.fired {
		return false // sustained condition, already notified
	}
	n.fired = true
	n.lastFiredAt = l.now()
	return true
}

// Baseline implements Ledger.
func (l *inMemoryLedger) Baseline(ctx context.Context, key string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.entries[key]
	if !ok || !n.hasBaseline {
		return 0, false
	}
	return n.baseline, true
}

// SetBaseline implements Ledger.
func (l *inMemoryLedger) SetBaseline(ctx context.Context, key string, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.get(key)
	n.baseline = v
	n.hasBaseline = true
}

// Forget implements Ledger.
func (l *inMemoryLedger) Forget(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.entries[key]
	if !ok {
		return
	}
	delete(l.entries, key)
	if l.head == n {
		l.head = n.next
	} else {
		cur := l.head
		for cur != nil && cur.next != n {
			cur = cur.next
		}
		if cur != nil {
			cur.next = n.next
		}
	}
	n.reset()
	l.nodePool.Put(n)
	l.size.Add(-1)
}

// evictOldest removes the oldest inserted entry (tail of the list).
// Must be called with l.mu held.
func (l *inMemoryLedger) evictOldest() {
	if l.head == nil {
		return
	}
	if l.head.next == nil {
		delete(l.entries, l.head.key)
		l.head.reset()
		l.nodePool.Put(l.head)
		l.head = nil
		l.size.Add(-1)
		return
	}
	prev := l.head
	cur := l.head.next
	for cur.next != nil {
		prev = cur
		cur = cur.next
	}
	prev.next = nil
	delete(l.entries, cur.key)
	cur.reset()
	l.nodePool.Put(cur)
	l.size.Add(-1)
}

// Size returns the current number of tracked keys.
func (l *inMemoryLedger) Size() int64 {
	return l.size.Load()
}
