package auth

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateUser         = errors.New("user already exists")
	ErrUserNotFound          = errors.New("user does not exist")
	ErrBadCredentials        = errors.New("email and password combination is wrong")
	ErrInvalidOrExpiredToken = errors.New("password reset token is invalid or has expired")

	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

// StoreError wraps any failure of the credential store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the credential store
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
