package apperrors

import "errors"

// Standardized xAPI Errors
var (
	ErrConnectionFailure  = errors.New("connection failure")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrListenerBusy       = errors.New("listener already active")
	ErrLoginFailed        = errors.New("login failed")
	ErrNotLoggedIn        = errors.New("no stream session token")
)
