package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Token errors
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrRefreshFailed   = errors.New("token refresh failed")
	ErrSessionExpired  = errors.New("session expired")
	ErrIncompletePair  = errors.New("access token without refresh token")
	ErrProfileRejected = errors.New("profile request rejected")

	// Record errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
