package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions adds headers and query parameters whose values are masked
// on top of the built-in sets. Names are matched case-insensitively.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	// UUIDs before email so ids embedded in addresses are still caught.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, k := range group {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				out[k] = struct{}{}
			}
		}
	}
	return out
}

// redactQuery masks sensitive parameters entirely and scrubs identifiers
// out of the rest. Malformed pairs are dropped.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, _ := url.ParseQuery(raw)
	for k, vv := range q {
		if _, ok := mask[strings.ToLower(k)]; ok {
			q[k] = []string{redacted}
			continue
		}
		for i := range vv {
			vv[i] = scrub(vv[i])
		}
	}
	// Encode escapes the brackets of the markers; the log stays readable
	// after unescaping and ordering is stable.
	out, err := url.QueryUnescape(q.Encode())
	if err != nil {
		out = q.Encode()
	}
	return truncate(out, maxQueryLogLength)
}

// RedactingLogger writes one structured access log per request and attaches
// a request-scoped logger carrying request_id and farmer_id for handlers.
//
// OAuth material never reaches the log: the code, state and token query
// parameters of the callback are masked, as are Authorization and cookie
// headers. The farmer id gets the same email and UUID scrubbing as query
// values, since farmers often sign in with their address. Bodies are never logged. Level follows the status: error for
// 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{
		"code", "state", "access_token", "refresh_token", "id_token", "client_secret",
	}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := redactQuery(c.Request.URL.RawQuery, maskQuery)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = redacted
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}

		rid := c.Writer.Header().Get(requestIDHeader)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}
		lg := log.With().
			Str("request_id", rid).
			Str("farmer_id", scrub(FarmerID(c))).
			Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		status := c.Writer.Status()
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}
		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
