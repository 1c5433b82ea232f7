// OAuth HTTP handlers.
//
//   - GET /auth/login       (redirect to the provider)
//   - GET /auth/callback    (state check, code exchange, connections check)
//   - GET /auth/connected   (landing page after granting organization access)
//   - GET /auth/success     (landing page when no connection is pending)
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/http/middleware"
)

// anonymousFarmer is used when /auth/login is called without a farmer id.
const anonymousFarmer = "anonymous"

// AuthMessage is the body of the auth landing pages.
type AuthMessage struct {
	Message  string `json:"message"`
	FarmerID string `json:"farmer_id,omitempty"`
}

// Login godoc
// @ID          login
// @Summary     Start the OAuth authorization
// @Description Issues a one-time state bound to the farmer and redirects to the provider's authorization page.
// @Tags        Auth
// @Param       farmer_id  query  string  false  "Farmer identifier"  default(anonymous)
// @Success     302
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /auth/login [get]
func (h *Handlers) Login(c *gin.Context) {
	farmerID := strings.TrimSpace(c.Query("farmer_id"))
	if farmerID == "" {
		farmerID = anonymousFarmer
	}
	authURL, _, err := h.auth.BeginAuthorization(c.Request.Context(), farmerID, "")
	if err != nil {
		failErr(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback godoc
// @ID          authCallback
// @Summary     OAuth redirect target
// @Description Validates the state, exchanges the code, stores the credential and, when the farmer still has to grant organization access, redirects to the provider's connections page.
// @Tags        Auth
// @Param       code   query  string  false  "Authorization code"
// @Param       state  query  string  true   "State issued by /auth/login"
// @Param       error  query  string  false  "Provider error"
// @Success     302
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /auth/callback [get]
func (h *Handlers) Callback(c *gin.Context) {
	if perr := c.Query("error"); perr != "" {
		msg := "authorization failed: " + perr
		if d := c.Query("error_description"); d != "" {
			msg += " (" + d + ")"
		}
		fail(c, http.StatusBadRequest, ErrCodeAuthDenied, msg)
		return
	}

	ctx := c.Request.Context()
	farmerID, err := h.auth.ConsumeState(ctx, c.Query("state"))
	if err != nil {
		failErr(c, err)
		return
	}
	cred, err := h.auth.ExchangeCode(ctx, c.Query("code"))
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.auth.SaveCredential(ctx, farmerID, cred); err != nil {
		failErr(c, err)
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Info().Str("farmer_id", farmerID).Msg("farmer authorized")

	if h.connections != nil {
		uri, needed, err := h.connections.CheckConnectionsNeeded(ctx, farmerID)
		switch {
		case err != nil:
			// The credential is stored; the farmer can still sync whatever
			// organizations are already shared.
			lg.Warn().Err(err).Str("farmer_id", farmerID).Msg("connections check failed")
		case needed:
			c.Redirect(http.StatusFound, withQuery(uri, "redirect_uri", h.baseURL+"/auth/connected"))
			return
		}
	}
	c.Redirect(http.StatusFound, "/auth/success?farmer_id="+url.QueryEscape(farmerID))
}

// Connected godoc
// @ID          authConnected
// @Summary     Organization access granted
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.AuthMessage
// @Router      /auth/connected [get]
func (h *Handlers) Connected(c *gin.Context) {
	ok(c, http.StatusOK, AuthMessage{
		Message: "Organization access granted. Data can now be synced.",
	})
}

// Success godoc
// @ID          authSuccess
// @Summary     Authorization completed
// @Tags        Auth
// @Produce     json
// @Param       farmer_id  query  string  false  "Farmer identifier"
// @Success     200  {object}  handlers.AuthMessage
// @Router      /auth/success [get]
func (h *Handlers) Success(c *gin.Context) {
	ok(c, http.StatusOK, AuthMessage{
		Message:  "Authorization successful.",
		FarmerID: c.Query("farmer_id"),
	})
}

// withQuery appends key=value to raw, keeping its existing parameters.
func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + key + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
