// Package services defines the business logic for identity resolution,
// conversation history, and the message round-trip. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrUpstreamMalformed is returned when the completion endpoint
	// produced a body that is not a well-formed JSON object. The request
	// is rejected and nothing is persisted.
	ErrUpstreamMalformed = errors.New("upstream returned malformed body")
)
