// Package services holds the synchronization engine: the OAuth credential
// lifecycle, the per-field and per-farmer sync orchestration, and the read
// models built on top of the local store (snapshot, export, stats).
//
// This file centralizes the service-level errors. Translation into HTTP
// statuses happens in the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential means no credential is stored for the user.
	ErrNoCredential = errors.New("no credential stored for user")

	// ErrNoRefreshToken means the stored credential is expired and cannot be
	// renewed without a new authorization.
	ErrNoRefreshToken = errors.New("credential expired and has no refresh token")

	// ErrInvalidState is returned for unknown, expired or already used OAuth
	// state values.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("authorization code missing")

	// ErrInvalidMode is returned for sync modes other than full_history and incremental.
	ErrInvalidMode = errors.New("sync mode must be full_history or incremental")

	// ErrFieldNotFound is returned when a field is not known locally.
	ErrFieldNotFound = errors.New("field not found")

	// ErrOrganizationNotFound is returned when an organization is not known locally.
	ErrOrganizationNotFound = errors.New("organization not found")
)

// AuthExchangeError wraps a failed authorization-code exchange.
type AuthExchangeError struct {
	Err error
}

func (e *AuthExchangeError) Error() string { return "token exchange failed: " + e.Err.Error() }
func (e *AuthExchangeError) Unwrap() error { return e.Err }

// AuthRefreshError wraps a failed refresh-token grant.
type AuthRefreshError struct {
	UserID string
	Err    error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for %s: %v", e.UserID, e.Err)
}
func (e *AuthRefreshError) Unwrap() error { return e.Err }

// PersistenceError wraps a local store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
