package decoder

import "errors"

var (
	// ErrNotFound is returned when no backend is registered for the codec
	// or hardware name.
	ErrNotFound = errors.New("decoder: codec or hardware backend not found")

	// ErrAllocFailed is returned when the backend cannot allocate its state.
	ErrAllocFailed = errors.New("decoder: allocation failed")

	// ErrOpenFailed is returned when the backend rejects the configuration.
	ErrOpenFailed = errors.New("decoder: open failed")

	// ErrNotReady is returned by calls on a session that is not Ready.
	ErrNotReady = errors.New("decoder: session not ready")
)
