package models

import "errors"

var (
	// ErrDataUnavailable means the index source was unreachable or returned a
	// response that could not be decoded into a reading.
	ErrDataUnavailable = errors.New("index data unavailable")

	// ErrInvalidInput marks a precondition violation: coordinates out of range,
	// a non-finite index value, or a malformed configuration value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotifierFailure means rendering or delivery of a notification failed.
	ErrNotifierFailure = errors.New("notifier failure")
)
