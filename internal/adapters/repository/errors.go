package repository

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrNotFound           = errors.New("participant not found")
	ErrInvalidParticipant = errors.New("participant id must not be empty")
	ErrNegativeTotal      = errors.New("participant total must not be negative")
	ErrQuery              = errors.New("dataset query failed")
)
