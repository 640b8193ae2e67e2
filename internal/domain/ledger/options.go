// Package ledger tracks threshold-notification conditions so a sustained
// condition fires at most once, re-arming only after it clears.
package ledger

import "time"

// Option applies a configuration option to the inMemoryLedger.
type Option func(*inMemoryLedger)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode with oldest-entry eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(l *inMemoryLedger) {
		l.maxSize = maxSize
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *inMemoryLedger) {
		if now != nil {
			l.now = now
		}
	}
}
