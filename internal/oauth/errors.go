package oauth

import (
	"errors"
	"fmt"
)

// Reasons attached to ReauthorizationRequiredError.
const (
	ReasonNotConnected    = "not_connected"
	ReasonTokenExpired    = "token_expired"
	ReasonRefreshRejected = "refresh_rejected"
	ReasonRefreshFailed   = "refresh_failed"
)

var (
	// ErrReauthorizationRequired matches every ReauthorizationRequiredError.
	ErrReauthorizationRequired = errors.New("oauth: reauthorization required")
	// ErrInvalidState indicates the callback state failed verification.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrInvalidManagerConfig wraps configuration failures of the manager.
	ErrInvalidManagerConfig = errors.New("oauth: invalid manager config")
)

// ReauthorizationRequiredError reports that no usable credential exists and the user
// must run the authorization flow again.
type ReauthorizationRequiredError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ReauthorizationRequiredError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oauth: %s reauthorization required (%s)", e.Provider, e.Reason)
	}
	return fmt.Sprintf("oauth: %s reauthorization required (%s): %v", e.Provider, e.Reason, e.Err)
}

func (e *ReauthorizationRequiredError) Unwrap() error {
	return e.Err
}

// Is matches ErrReauthorizationRequired.
func (e *ReauthorizationRequiredError) Is(target error) bool {
	return target == ErrReauthorizationRequired
}

// Code returns the client-facing error code: not_connected when the user never
// authorized the provider, token_expired otherwise.
func (e *ReauthorizationRequiredError) Code() string {
	if e.Reason == ReasonNotConnected {
		return ReasonNotConnected
	}
	return ReasonTokenExpired
}

func reauthorizationRequired(provider, reason string, cause error) error {
	return &ReauthorizationRequiredError{Provider: provider, Reason: reason, Err: cause}
}
