package session

import "errors"

var (
	// ErrMissingCredentials is returned by Start when neither ambient
	// credentials nor a per-call credential variable are available.
	ErrMissingCredentials = errors.New("missing credentials: " + credentialsVariable +
		" must be supplied either as an environment variable or a channel variable")

	// ErrInvalidAddress wraps every agent token parse failure.
	ErrInvalidAddress = errors.New("invalid agent address")

	// ErrSessionExists is returned when a session id is already attached.
	ErrSessionExists = errors.New("session already attached")

	// ErrNotAttached is returned by Stop when no stream is attached.
	ErrNotAttached = errors.New("session not attached")

	// ErrInvalidSampleRate is returned for unusable resampler rates.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)
