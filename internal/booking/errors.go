package booking

import "errors"

var (
	ErrSessionNotFound    = errors.New("booking session not found or expired")
	ErrConfirmed          = errors.New("booking already confirmed")
	ErrUnknownService     = errors.New("unknown service")
	ErrUnknownSlot        = errors.New("unknown time slot")
	ErrUnknownSessionType = errors.New("unknown session type")
)
