// Package inflight tracks computations currently running per key so that
// concurrent requests for the same key do not duplicate the work.
package inflight

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rivalry/pkg/metrics"
)

// DefaultPollInterval is how often AwaitRelease re-checks a claimed key.
const DefaultPollInterval = 100 * time.Millisecond

// Marker records who holds a key and since when.
type Marker struct {
	Key       string
	ClaimedAt time.Time
}

// Registry guarantees at most one marker per key at any instant.
type Registry interface {
	// TryClaim inserts a marker for key and reports true only if none existed.
	TryClaim(ctx context.Context, key string) bool

	// Release removes the marker for key. Releasing an absent key is a no-op.
	Release(ctx context.Context, key string)

	// AwaitRelease blocks until key is released, timeout elapses or ctx is
	// done. It reports true only when the key was observed released.
	AwaitRelease(ctx context.Context, key string, timeout time.Duration) bool

	// Takeover claims key when it is free or its marker is older than
	// staleAfter. It is the recovery path for a holder that never released.
	Takeover(ctx context.Context, key string, staleAfter time.Duration) bool

	// Claimed returns the marker currently held for key.
	Claimed(key string) (Marker, bool)

	Len() int
}

type inMemoryRegistry struct {
	mu           sync.Mutex
	markers      map[string]Marker
	pollInterval time.Duration
	now          func() time.Time
}

// NewRegistry creates an in-memory registry with configuration options.
func NewRegistry(opts ...Option) Registry {
	r := &inMemoryRegistry{
		markers:      make(map[string]Marker),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *inMemoryRegistry) TryClaim(_ context.Context, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.markers[key]; held {
		return false
	}
	r.markers[key] = Marker{Key: key, ClaimedAt: r.now()}
	metrics.UpdateInflightClaims(len(r.markers))
	return true
}

func (r *inMemoryRegistry) Release(_ context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.markers, key)
	metrics.UpdateInflightClaims(len(r.markers))
}

func (r *inMemoryRegistry) AwaitRelease(ctx context.Context, key string, timeout time.Duration) bool {
	if !r.held(key) {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !r.held(key)
		case <-ticker.C:
			if !r.held(key) {
				return true
			}
		}
	}
}

func (r *inMemoryRegistry) Takeover(_ context.Context, key string, staleAfter time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if m, held := r.markers[key]; held && now.Sub(m.ClaimedAt) < staleAfter {
		return false
	}
	r.markers[key] = Marker{Key: key, ClaimedAt: now}
	metrics.UpdateInflightClaims(len(r.markers))
	return true
}

func (r *inMemoryRegistry) Claimed(key string) (Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[key]
	return m, ok
}

func (r *inMemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}

func (r *inMemoryRegistry) held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[key]
	return ok
}
