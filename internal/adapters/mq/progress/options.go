package progress

import "time"

// Option applies a configuration option to a Channel.
type Option func(*Channel)

// WithBufferSize sets how many events may wait for the consumer.
func WithBufferSize(size int) Option {
	return func(c *Channel) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithID sets the stream id instead of a generated one.
func WithID(id string) Option {
	return func(c *Channel) {
		c.id = id
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}
