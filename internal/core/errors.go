// Package core implements the transport-agnostic request/response engine
// shared by every UDP protocol client: request records, the session
// registry, and the priority-aware messenger that dispatches and correlates
// them. Protocol-specific codecs (internal/a2s, internal/master,
// internal/rcon) sit on top of this package.
package core

import "errors"

// Error kinds surfaced on a request's completion handle. Each is a sentinel
// so callers can match with errors.Is even after a request record has been
// wrapped with additional context.
var (
	ErrTransport               = errors.New("agql: transport error")
	ErrEncoding                = errors.New("agql: encoding error")
	ErrMalformedPayload        = errors.New("agql: malformed payload")
	ErrUnrecognizedMessage     = errors.New("agql: unrecognized message")
	ErrPacketSizeLimitExceeded = errors.New("agql: packet exceeds size limit")
	ErrRequestTimedOut         = errors.New("agql: request timed out")
	ErrDuplicateSession        = errors.New("agql: duplicate session")
	ErrAuthenticationFailed    = errors.New("agql: authentication failed")
	ErrCancelled               = errors.New("agql: request cancelled")
)
