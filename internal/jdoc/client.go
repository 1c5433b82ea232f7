// Package jdoc is the client for the farm-management platform's hierarchy API
// (organizations, fields and field operations).
//
// Every call resolves an access token through a TokenSource first; a user
// without a usable token gets ErrUnauthenticated and nothing is sent. HTTP
// failures are mapped onto the package's error values:
//
//   - 401 → ErrAuthInvalid
//   - 403 → ErrPermissionDenied
//   - any other non-2xx, transport failure or timeout → *RemoteRequestError
//
// Requests are never retried. A single rate limiter throttles all outbound
// calls made through one Client. nextPage links are only followed while they
// stay on the scheme and host of the base URL.
package jdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/agricapture/fieldsync/internal/observability"
)

const (
	// AcceptHeader selects the v3 representation of platform resources.
	AcceptHeader = "application/vnd.deere.axiom.v3+json"

	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 200
	maxBodyBytes    = 32 << 20
	maxErrBody      = 512

	// dateLayout is the timestamp format accepted by the fieldOperations filters.
	dateLayout = "2006-01-02T15:04:05.000Z"
)

// TokenSource hands out a currently valid access token for a user.
type TokenSource interface {
	GetValidToken(ctx context.Context, userID string) (string, bool)
}

// OrganizationSink receives every organization fetched from the platform.
type OrganizationSink interface {
	SaveOrganization(ctx context.Context, farmerID string, org Organization) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles outbound requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithOrganizationSink persists organizations as they are listed.
func WithOrganizationSink(s OrganizationSink) Option {
	return func(c *Client) { c.sink = s }
}

// WithMaxPages caps how many nextPage links a single listing follows.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// Client talks to the platform API on behalf of individual users.
type Client struct {
	baseURL    string
	tokens     TokenSource
	sink       OrganizationSink
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxPages   int
}

// NewClient builds a Client for baseURL (e.g. https://sandboxapi.deere.com/platform).
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:     tokens,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		maxPages:   defaultMaxPages,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ListOrganizations returns every organization visible to userID and hands
// each one to the configured OrganizationSink.
func (c *Client) ListOrganizations(ctx context.Context, userID string) ([]Organization, error) {
	values, err := c.list(ctx, userID, "organizations", "/organizations", nil)
	if err != nil {
		return nil, err
	}
	orgs := make([]Organization, 0, len(values))
	for _, raw := range values {
		var o Organization
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, &RemoteRequestError{Endpoint: "organizations", Status: http.StatusOK, Body: truncate(string(raw)), Err: err}
		}
		o.Raw = raw
		if c.sink != nil {
			if err := c.sink.SaveOrganization(ctx, userID, o); err != nil {
				return nil, fmt.Errorf("save organization %s: %w", o.ID, err)
			}
		}
		orgs = append(orgs, o)
	}
	return orgs, nil
}

// CheckConnectionsNeeded lists the user's organizations and returns the URI
// of the first "connections" link, meaning the user still has to grant this
// application access to an organization.
func (c *Client) CheckConnectionsNeeded(ctx context.Context, userID string) (string, bool, error) {
	orgs, err := c.ListOrganizations(ctx, userID)
	if err != nil {
		return "", false, err
	}
	for _, o := range orgs {
		if uri, ok := o.Link(RelConnections); ok {
			return uri, true, nil
		}
	}
	return "", false, nil
}

// ListFields returns the fields of orgID, embedding boundaries on request.
func (c *Client) ListFields(ctx context.Context, userID, orgID string, includeBoundaries bool) ([]Field, error) {
	var q url.Values
	if includeBoundaries {
		q = url.Values{"embed": {"boundaries"}}
	}
	values, err := c.list(ctx, userID, "fields", "/organizations/"+url.PathEscape(orgID)+"/fields", q)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, len(values))
	for _, raw := range values {
		var f Field
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, &RemoteRequestError{Endpoint: "fields", Status: http.StatusOK, Body: truncate(string(raw)), Err: err}
		}
		f.Raw = raw
		fields = append(fields, f)
	}
	log.Debug().Str("org_id", orgID).Int("fields", len(fields)).Msg("jdoc: fields listed")
	return fields, nil
}

// ListFieldOperations returns the raw field-operation records of a field.
// A nil bound is not sent, leaving that side of the window open.
func (c *Client) ListFieldOperations(ctx context.Context, userID, orgID, fieldID string, start, end *time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	if start != nil {
		q.Set("startDate", start.UTC().Format(dateLayout))
	}
	if end != nil {
		q.Set("endDate", end.UTC().Format(dateLayout))
	}
	path := "/organizations/" + url.PathEscape(orgID) + "/fields/" + url.PathEscape(fieldID) + "/fieldOperations"
	return c.list(ctx, userID, "fieldOperations", path, q)
}

// list fetches a collection and follows nextPage links. The token is
// resolved once per listing.
func (c *Client) list(ctx context.Context, userID, endpoint, path string, q url.Values) ([]json.RawMessage, error) {
	token, ok := c.tokens.GetValidToken(ctx, userID)
	if !ok || token == "" {
		return nil, ErrUnauthenticated
	}

	next := c.baseURL + path
	if len(q) > 0 {
		next += "?" + q.Encode()
	}

	var out []json.RawMessage
	for page := 0; next != ""; page++ {
		if page >= c.maxPages {
			log.Warn().Str("endpoint", endpoint).Int("pages", page).Msg("jdoc: page limit reached, truncating listing")
			break
		}
		env, err := c.get(ctx, token, endpoint, next)
		if err != nil {
			return nil, err
		}
		out = append(out, env.Values...)
		link, ok := findLink(env.Links, RelNextPage)
		if !ok {
			break
		}
		if next, err = c.sameOrigin(link); err != nil {
			log.Warn().Str("endpoint", endpoint).Err(err).Msg("jdoc: refusing nextPage")
			return nil, &RemoteRequestError{Endpoint: endpoint, Err: err}
		}
		log.Debug().Str("endpoint", endpoint).Str("next", next).Msg("jdoc: following nextPage")
	}
	return out, nil
}

// sameOrigin resolves link against the base URL and accepts it only when
// scheme and host match the base.
func (c *Client) sameOrigin(link string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u, err := base.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s://%s", ErrForeignPageLink, u.Scheme, u.Host)
	}
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, token, endpoint, target string) (*listEnvelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RemoteRequestError{Endpoint: endpoint, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RemoteRequestError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", AcceptHeader)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveRemote(endpoint, 0, time.Since(start))
		return nil, &RemoteRequestError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	observability.ObserveRemote(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &RemoteRequestError{Endpoint: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthInvalid
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrPermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &RemoteRequestError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Body:     truncate(string(body)),
			Err:      errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &RemoteRequestError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(body)), Err: err}
	}
	return &env, nil
}

func truncate(s string) string {
	if len(s) <= maxErrBody {
		return s
	}
	return s[:maxErrBody] + "..."
}
