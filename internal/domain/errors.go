package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Protocol errors: the offending frame is dropped, the connection survives.
	ErrShortFrame       = errors.New("frame shorter than opcode")
	ErrMalformedPayload = errors.New("frame payload is not valid JSON")
	ErrUnknownOpcode    = errors.New("unknown or non-request opcode")
	ErrMissingField     = errors.New("required payload field missing")

	// Routing errors
	ErrPeerNotFound  = errors.New("peer not connected")
	ErrDuplicatePeer = errors.New("peer id already registered")

	// Transport errors
	ErrSessionClosed = errors.New("session is closed")
	ErrSendFailed    = errors.New("transport send failed")

	// Handshake
	ErrInvalidAccessKey = errors.New("Invalid access key")

	// Startup errors (process-fatal)
	ErrCertificateLoad = errors.New("load TLS certificate")
	ErrNoCertificate   = errors.New("no TLS certificate loaded")
)
