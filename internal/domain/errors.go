package domain

import "github.com/pkg/errors"

var (
	// ErrSessionUnavailable means the upstream session never came up (or the
	// execution context has stopped). No network call was attempted.
	ErrSessionUnavailable = errors.New("knowledge base session unavailable")

	// ErrNoAnswer means the upstream call failed or returned nothing.
	ErrNoAnswer = errors.New("knowledge base returned no answer")

	// ErrQueryTimeout means the caller stopped waiting. The upstream call may
	// still be running.
	ErrQueryTimeout = errors.New("knowledge base query timed out")
)
