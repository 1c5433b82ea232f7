package jdoc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no usable access token exists for the user.
	// It is returned before any network attempt.
	ErrUnauthenticated = errors.New("no valid access token available")

	// ErrAuthInvalid is returned when the platform answers 401.
	ErrAuthInvalid = errors.New("authentication failed: token may be invalid")

	// ErrPermissionDenied is returned when the platform answers 403.
	ErrPermissionDenied = errors.New("access forbidden: check organization permissions")

	// ErrForeignPageLink is returned when a nextPage link leaves the API
	// origin. The link is not requested, so the bearer token stays put.
	ErrForeignPageLink = errors.New("nextPage link points outside the API origin")
)

// RemoteRequestError covers every other failed request. Status is 0 when
// no HTTP response was received (transport failure or timeout).
type RemoteRequestError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *RemoteRequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote request %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("remote request %s failed: %d - %s", e.Endpoint, e.Status, e.Body)
}

func (e *RemoteRequestError) Unwrap() error { return e.Err }

// IsAuthError reports whether err means the user's authorization is unusable,
// which aborts a sweep instead of being recorded per field.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrAuthInvalid)
}
