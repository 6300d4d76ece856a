package framer

import "errors"

// Error taxonomy for the HTTP-variant (self-encrypted) transport, per
// spec.md §7. Transport errors close the connection and trigger supervisor
// reconnection; the Framer never attempts to recover from any of these.
var (
	ErrShortFrame  = errors.New("framer: frame shorter than minimum length")
	ErrMacMismatch = errors.New("framer: HMAC verification failed")
	ErrPadError    = errors.New("framer: invalid padding length")
)
