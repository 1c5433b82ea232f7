// Package handlers defines the HTTP error taxonomy of the API.
//
// Every error response carries one of these stable codes next to the HTTP
// status, so clients can branch on the code without parsing messages:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "auth_refresh_failed",
//	  "message": "token refresh failed for farmer-1: ..."
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"

	// OAuth flow
	ErrCodeAuthDenied         = "authorization_denied"
	ErrCodeInvalidState       = "invalid_state"
	ErrCodeAuthInvalid        = "auth_invalid"
	ErrCodeAuthRefreshFailed  = "auth_refresh_failed"
	ErrCodeAuthExchangeFailed = "auth_exchange_failed"

	// Remote platform and local store
	ErrCodeRemoteFailed      = "remote_request_failed"
	ErrCodeRemoteTimeout     = "remote_timeout"
	ErrCodePersistenceFailed = "persistence_failed"
)

// failErr translates a service error into its status and code. Sentinels
// are checked before typed errors because typed errors may wrap them.
func failErr(c *gin.Context, err error) {
	var (
		refreshErr  *services.AuthRefreshError
		exchangeErr *services.AuthExchangeError
		persistErr  *services.PersistenceError
		remoteErr   *jdoc.RemoteRequestError
	)
	switch {
	case errors.Is(err, services.ErrInvalidMode),
		errors.Is(err, services.ErrMissingCode):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		fail(c, http.StatusBadRequest, ErrCodeInvalidState, err.Error())
	case errors.Is(err, jdoc.ErrUnauthenticated),
		errors.Is(err, services.ErrNoCredential),
		errors.Is(err, services.ErrNoRefreshToken):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, jdoc.ErrAuthInvalid):
		fail(c, http.StatusUnauthorized, ErrCodeAuthInvalid, err.Error())
	case errors.As(err, &refreshErr):
		fail(c, http.StatusUnauthorized, ErrCodeAuthRefreshFailed, err.Error())
	case errors.As(err, &exchangeErr):
		fail(c, http.StatusBadGateway, ErrCodeAuthExchangeFailed, err.Error())
	case errors.Is(err, jdoc.ErrPermissionDenied):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrOrganizationNotFound),
		errors.Is(err, services.ErrFieldNotFound),
		errors.Is(err, repo.ErrNotFound),
		errors.Is(err, archive.ErrObjectNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &remoteErr):
		if remoteErr.Status == 0 && errors.Is(err, context.DeadlineExceeded) {
			fail(c, http.StatusGatewayTimeout, ErrCodeRemoteTimeout, err.Error())
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeRemoteFailed, err.Error())
	case errors.As(err, &persistErr):
		fail(c, http.StatusInternalServerError, ErrCodePersistenceFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
