package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented matches every NotImplementedError.
	ErrNotImplemented = errors.New("providers: operation not implemented")
	// ErrProviderUnavailable reports an upstream outage when strict mode is enabled.
	ErrProviderUnavailable = errors.New("providers: provider unavailable")
	// ErrUnknownProvider indicates no provider is registered under the key.
	ErrUnknownProvider = errors.New("providers: unknown provider")
	// ErrInvalidProviderConfig wraps configuration failures of provider constructors.
	ErrInvalidProviderConfig = errors.New("providers: invalid provider config")
)

// NotImplementedError reports an operation the provider does not support yet.
type NotImplementedError struct {
	Provider  string
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("providers: %s does not implement %s", e.Provider, e.Operation)
}

// Is matches ErrNotImplemented.
func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

func notImplemented(provider, operation string) error {
	return &NotImplementedError{Provider: provider, Operation: operation}
}

// UnavailableError wraps an upstream failure surfaced in strict mode.
type UnavailableError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("providers: %s %s unavailable: %v", e.Provider, e.Operation, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrProviderUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}
