// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the response hardening of the API: baseline security
// headers on every route and a no-store policy for the OAuth routes.
//
// Notes:
//   - There is no Content-Security-Policy. The API serves JSON and
//     redirects only; Swagger UI, when enabled, sits on its own route.
//   - HSTS is opt-in and only sent for requests that arrived over HTTPS,
//     directly or through a proxy setting X-Forwarded-Proto.
//   - Header values are computed once per middleware instance.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests, never for
// plain HTTP. Enable it only when the whole path to the client is HTTPS.
//
// HSTSMaxAge is the HSTS lifetime. Zero or negative values fall back to
// 180 days.
type SecurityOptions struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// SecurityHeaders returns a Gin middleware that adds the baseline hardening
// headers to every response.
//
// Behavior:
//   - Always sets:
//     X-Content-Type-Options: nosniff
//     X-Frame-Options: DENY
//     Referrer-Policy: no-referrer
//     Permissions-Policy: geolocation=(), microphone=(), camera=(), payment=()
//   - Sets Strict-Transport-Security: max-age=<seconds>; includeSubDomains
//     when EnableHSTS is on and the request is HTTPS.
//   - When X-Request-ID is already on the response, appends it to
//     Access-Control-Expose-Headers so browser clients can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			const expose = "Access-Control-Expose-Headers"
			switch cur := h.Get(expose); {
			case cur == "":
				h.Set(expose, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(expose, cur+", "+requestIDHeader)
			}
		}
		c.Next()
	}
}

// NoStore forbids caching of the response.
//
// Sets:
//
//	Cache-Control: no-store
//	Pragma: no-cache
//
// The OAuth routes carry codes and state in their URLs and redirects and
// must never land in a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		c.Next()
	}
}

// isHTTPS reports TLS termination either here or at a proxy that set
// X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
