package domain

import "errors"

var (
	// ErrMediaAccess is the only error surfaced to the user as actionable.
	ErrMediaAccess         = errors.New("media access denied or no capture device")
	ErrChannelDisconnected = errors.New("signaling channel disconnected")
	ErrStaleMessage        = errors.New("message does not match current call")
	ErrNegotiationFailure  = errors.New("transport negotiation failed")
	ErrHistoryPersistence  = errors.New("call history persistence failed")

	ErrBusy              = errors.New("a call is already in progress")
	ErrIllegalTransition = errors.New("illegal call state transition")
	ErrUserOffline       = errors.New("user is offline")

	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)
