// Package remote holds the HTTP clients for the context lookup and the
// forecast generator services.
package remote

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/rivalry/pkg/logger"
)

const (
	breakerInterval        = 60 * time.Second
	breakerTimeout         = 30 * time.Second
	breakerConsecutiveTrip = 5
)

func newBreaker(name string, log logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
}
