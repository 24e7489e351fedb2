package users

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrEmailTaken indicates a user with the email already exists.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrTokenNotFound indicates no credential exists for the user and provider.
	ErrTokenNotFound = errors.New("users: oauth token not found")
	// ErrInvalidUser indicates the user record is missing required fields.
	ErrInvalidUser = errors.New("users: invalid user")
	// ErrInvalidToken indicates the credential record is missing required fields.
	ErrInvalidToken = errors.New("users: invalid oauth token")

	errMissingDatabase = errors.New("database handle is required")
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew        = "users.store.new"
	opCreateUser      = "users.create_user"
	opUserByID        = "users.user_by_id"
	opUserByEmail     = "users.user_by_email"
	opOAuthToken      = "users.oauth_token"
	opUpsertToken     = "users.upsert_oauth_token"
	opUpdateRefreshed = "users.update_refreshed_oauth_token"
	opDeleteToken     = "users.delete_oauth_token"
	reasonQueryFailed = "query_failed"
	reasonInvalid     = "invalid_input"
	reasonDuplicate   = "duplicate_email"
	reasonWriteFailed = "write_failed"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
