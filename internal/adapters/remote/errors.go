package remote

import "errors"

var (
	// ErrStatus reports a non-2xx response.
	ErrStatus = errors.New("unexpected response status")
	// ErrMissingCredentials reports a generator configured without an API key.
	ErrMissingCredentials = errors.New("generator api key is required")
)
