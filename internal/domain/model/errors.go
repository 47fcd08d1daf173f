package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches vendor responses that reject the bearer token
	// (HTTP 401 or 403).
	ErrUnauthorized = errors.New("vendor rejected access token")

	// ErrNoActiveSession is returned when a stop is requested but the vendor
	// reports no running session for the configured charger.
	ErrNoActiveSession = errors.New("no active charging session")
)

// AuthFailureKind classifies why a login attempt failed.
type AuthFailureKind string

const (
	AuthInvalidCredentials AuthFailureKind = "invalid_credentials"
	AuthTimeout            AuthFailureKind = "timeout"
	AuthNetwork            AuthFailureKind = "network"
	AuthUnexpectedResponse AuthFailureKind = "unexpected_response"
)

// AuthenticationError reports a failed vendor login.
type AuthenticationError struct {
	Kind AuthFailureKind
	Err  error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed (%s)", e.Kind)
	}
	return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthError is shorthand for building an AuthenticationError.
func NewAuthError(kind AuthFailureKind, err error) *AuthenticationError {
	return &AuthenticationError{Kind: kind, Err: err}
}

// VendorError carries a non-2xx vendor response for diagnostics.
type VendorError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor %s returned %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUnauthorized) match auth-failure statuses.
func (e *VendorError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// StorageError reports a token store I/O failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("token store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
