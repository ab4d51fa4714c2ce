// Package repository provides the ranked dataset backends.
package repository

import (
	"context"

	"github.com/okian/rivalry/internal/domain/model"
)

// Store provides read/write access to participants.
type Store interface {
	// Snapshot returns every participant ordered by total desc, id asc.
	Snapshot(ctx context.Context) ([]model.Participant, error)

	// Get returns one participant. Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (model.Participant, error)

	// Record upserts p. The stored total never decreases: a lower total
	// keeps the previous one while location and activity are still updated.
	// Returns true if the total changed.
	Record(ctx context.Context, p model.Participant) (bool, error)

	// Count returns the number of participants.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Backend names used as metric labels.
const (
	backendMemory = "memory"
	backendSQLite = "sqlite"
	backendRedis  = "redis"
)

func validate(p model.Participant) error {
	if p.ID == "" {
		return ErrInvalidParticipant
	}
	if p.Total < 0 {
		return ErrNegativeTotal
	}
	return nil
}
