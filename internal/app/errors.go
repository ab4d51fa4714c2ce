package service

import "errors"

var (
	// ErrInvalidRequest reports a request without a participant id.
	ErrInvalidRequest = errors.New("participant id is required")
	// ErrInvalidLimit reports a leaderboard limit outside [1, max].
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrDataFetch reports a failure to read the ranked dataset.
	ErrDataFetch = errors.New("failed to fetch participant data")
	// ErrDeadline reports a prediction that ran out of time before a
	// result was obtained.
	ErrDeadline = errors.New("prediction deadline exceeded")
	// ErrPanic reports a computation that panicked.
	ErrPanic = errors.New("prediction panicked")
)
