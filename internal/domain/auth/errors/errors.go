package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrInternal       = errors.New("internal error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrAuthentication = errors.New("wrong username, password or token")
	ErrPermission     = errors.New("superuser permission required")
	ErrInactiveUser   = errors.New("inactive user")
	ErrLogout         = errors.New("logout failed")
	ErrUninitialized  = errors.New("database session manager is not initialized")

	// token verification failures, all surfaced as 401
	ErrInvalidToken  = errors.New("could not validate credentials")
	ErrTokenType     = errors.New("could not validate token type")
	ErrTokenExpired  = errors.New("token expired")
	ErrNoUserInToken = errors.New("token does not carry a user")
)

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// NewConflict reports a uniqueness violation on field (username, email).
func NewConflict(field string) error {
	return fmt.Errorf("%w: %s", ErrConflict, field)
}

func NewNotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func WrapInternal(err error, context string) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, context, err)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

func IsInactiveUser(err error) bool {
	return errors.Is(err, ErrInactiveUser)
}

func IsLogout(err error) bool {
	return errors.Is(err, ErrLogout)
}

func IsUninitialized(err error) bool {
	return errors.Is(err, ErrUninitialized)
}

// IsTokenError reports whether err is any of the token verification failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenType) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrNoUserInToken)
}
