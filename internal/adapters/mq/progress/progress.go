// Package progress carries coarse progress events of one forecast computation
// from the orchestrator to whoever streams them to the client.
//
// A Channel has one producer and one consumer. Publishing never blocks: when
// the buffer is full the event is dropped and counted. The terminal record
// always has a reserved slot, so a consumer draining until Complete is
// guaranteed to see it.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/metrics"
)

// DefaultBufferSize bounds the number of undelivered events.
const DefaultBufferSize = 64

// Event is one record on the stream.
type Event struct {
	Message   string                `json:"message,omitempty"`
	Progress  *int                  `json:"progress,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Result    *model.ForecastResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	Complete  bool                  `json:"complete,omitempty"`
}

// Milestone is a fixed progress point of the computation.
type Milestone struct {
	Progress int
	Message  string
}

// Milestones in publish order.
var (
	Start             = Milestone{0, "Starting prediction"}
	SelfFetched       = Milestone{10, "Fetching participant information..."}
	GapResolved       = Milestone{25, "Finding competitors and chasers..."}
	CompetitorFetched = Milestone{40, "Analyzing competitor data..."}
	ChaserFetched     = Milestone{50, "Analyzing chaser data..."}
	ContextFetched    = Milestone{60, "Fetching location-based context..."}
	InputPrepared     = Milestone{75, "Preparing forecast input..."}
	Generated         = Milestone{85, "Generating personalized recommendations..."}
	Finalized         = Milestone{95, "Calculating strategies..."}
	Completed         = Milestone{100, "Prediction complete!"}
	FromCache         = Milestone{100, "Loaded from cache"}
)

// Channel is a bounded, non-blocking event stream.
type Channel struct {
	id         string
	events     chan Event
	bufferSize int
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

// New creates a channel with configuration options.
func New(opts ...Option) *Channel {
	c := &Channel{
		bufferSize: DefaultBufferSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	// One extra slot is kept for the terminal record.
	c.events = make(chan Event, c.bufferSize+1)
	return c
}

// ID identifies the stream in logs.
func (c *Channel) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Publish enqueues e without blocking. It reports false when the event was
// dropped because the buffer is full, the channel is closed or ctx is done.
// A nil channel accepts nothing.
func (c *Channel) Publish(ctx context.Context, e Event) bool {
	if c == nil {
		return false
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || ctx.Err() != nil || len(c.events) >= c.bufferSize {
		metrics.RecordProgressDropped()
		return false
	}
	select {
	case c.events <- e:
		metrics.RecordProgressPublished()
		return true
	default:
		metrics.RecordProgressDropped()
		return false
	}
}

// Step publishes a milestone.
func (c *Channel) Step(ctx context.Context, m Milestone) bool {
	p := m.Progress
	return c.Publish(ctx, Event{Message: m.Message, Progress: &p})
}

// Complete publishes the terminal record and closes the channel. Exactly one
// of result or err is reported. Later calls are no-ops.
func (c *Channel) Complete(result *model.ForecastResult, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	final := Event{Timestamp: c.now(), Complete: true}
	if err != nil {
		final.Error = err.Error()
	} else {
		final.Result = result
	}
	// The reserved slot guarantees this send does not block.
	c.events <- final
	close(c.events)
	c.closed = true
}

// Close ends the stream without a terminal record.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.events)
		c.closed = true
	}
}

// Events exposes the receive side for select loops.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Consume returns the next event in publish order, or false once the stream
// is closed and drained or ctx is done.
func (c *Channel) Consume(ctx context.Context) (Event, bool) {
	select {
	case e, ok := <-c.events:
		return e, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

// Len returns the number of undelivered events.
func (c *Channel) Len() int {
	return len(c.events)
}

// IsClosed reports whether Complete or Close was called.
func (c *Channel) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
