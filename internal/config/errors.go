package config

import (
	"errors"
	"fmt"
)

// Errors returned by New, Load and Validate. Callers match them with errors.Is.
var (
	ErrLoadConfig    = errors.New("load config failed")
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidPolicy wraps ErrInvalidConfig for forecast constants that
	// pass field rules but contradict each other.
	ErrInvalidPolicy = fmt.Errorf("%w: policy", ErrInvalidConfig)

	// ErrClaimWindow wraps ErrInvalidConfig when the in-flight poll step
	// does not fit inside the wait bound.
	ErrClaimWindow = fmt.Errorf("%w: claim window", ErrInvalidConfig)
)
