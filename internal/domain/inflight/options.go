package inflight

import "time"

// Option applies a configuration option to the in-memory registry.
type Option func(*inMemoryRegistry)

// WithPollInterval sets how often AwaitRelease re-checks a key.
// Non-positive values keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(r *inMemoryRegistry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithClock replaces time.Now for marker timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *inMemoryRegistry) {
		if now != nil {
			r.now = now
		}
	}
}
