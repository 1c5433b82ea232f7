package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/repo"
)

// oauthServer is a minimal token endpoint.
type oauthServer struct {
	srv       *httptest.Server
	refreshes atomic.Int32
	exchanges atomic.Int32

	mu       sync.Mutex
	response map[string]any
	status   int
	lastForm url.Values
}

func newOAuthServer(t *testing.T) *oauthServer {
	t.Helper()
	o := &oauthServer{status: http.StatusOK, response: map[string]any{
		"access_token":  "new-access",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "new-refresh",
		"scope":         "ag1 offline_access",
	}}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		o.mu.Lock()
		o.lastForm = r.PostForm
		status, resp := o.status, o.response
		o.mu.Unlock()

		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			o.refreshes.Add(1)
			// widen the race window for concurrent callers
			time.Sleep(20 * time.Millisecond)
		case "authorization_code":
			o.exchanges.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *oauthServer) set(status int, resp map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	if resp != nil {
		o.response = resp
	}
}

func (o *oauthServer) form() url.Values {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastForm
}

func newTestTokenManager(t *testing.T, o *oauthServer) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(newTestDB(t), repo.Store{}, config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "http://localhost:8000/auth/callback",
		AuthURL:      o.srv.URL + "/authorize",
		TokenURL:     o.srv.URL + "/token",
		Scopes:       []string{"ag1", "offline_access"},
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	m.HTTPClient = o.srv.Client()
	return m
}

func seedCredential(t *testing.T, m *TokenManager, userID string, expires time.Time, refresh string) {
	t.Helper()
	err := repo.SaveCredential(context.Background(), m.DB, &domain.Credential{
		UserID: userID, AccessToken: "old-access", RefreshToken: refresh, TokenType: "Bearer", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestNewTokenManager_RequiresClientID(t *testing.T) {
	_, err := NewTokenManager(nil, repo.Store{}, config.OAuthConfig{RedirectURI: "x", AuthURL: "y", TokenURL: "z"})
	if err == nil || !strings.Contains(err.Error(), "CLIENT_ID") {
		t.Fatalf("expected CLIENT_ID error, got %v", err)
	}
}

func TestIsExpired_Margin(t *testing.T) {
	m := &TokenManager{Now: clockAt(t0)}
	cases := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"inside margin", t0.Add(4*time.Minute + 59*time.Second), true},
		{"exactly at margin", t0.Add(5 * time.Minute), true},
		{"outside margin", t0.Add(5*time.Minute + time.Second), false},
		{"already expired", t0.Add(-time.Hour), true},
		{"zero", time.Time{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.IsExpired(&domain.Credential{ExpiresAt: tc.expires}); got != tc.want {
				t.Fatalf("IsExpired(%s) = %v; want %v", tc.expires, got, tc.want)
			}
		})
	}
	if !m.IsExpired(nil) {
		t.Fatalf("nil credential must be expired")
	}
}

func TestTokenStatus_FreshTokenNoRefresh(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)
	m.Now = clockAt(t0)
	seedCredential(t, m, "u", t0.Add(time.Hour), "r1")

	tok, err := m.TokenStatus(context.Background(), "u")
	if err != nil || tok != "old-access" {
		t.Fatalf("got %q, %v", tok, err)
	}
	if o.refreshes.Load() != 0 {
		t.Fatalf("unexpected refresh")
	}
}

func TestTokenStatus_MissingCredential(t *testing.T) {
	m := newTestTokenManager(t, newOAuthServer(t))
	if _, err := m.TokenStatus(context.Background(), "nobody"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if tok, ok := m.GetValidToken(context.Background(), "nobody"); ok || tok != "" {
		t.Fatalf("GetValidToken = %q, %v", tok, ok)
	}
}

func TestTokenStatus_ExpiredWithoutRefreshToken(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)
	seedCredential(t, m, "u", time.Now().Add(-time.Hour), "")

	if _, err := m.TokenStatus(context.Background(), "u"); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if o.refreshes.Load() != 0 {
		t.Fatalf("no provider call expected")
	}
}

func TestTokenStatus_RefreshPersistsRotatedToken(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)
	seedCredential(t, m, "u", time.Now().Add(time.Minute), "r1")

	tok, err := m.TokenStatus(context.Background(), "u")
	if err != nil || tok != "new-access" {
		t.Fatalf("got %q, %v", tok, err)
	}
	f := o.form()
	if f.Get("refresh_token") != "r1" || f.Get("client_id") != "cid" || f.Get("client_secret") != "csecret" {
		t.Fatalf("unexpected refresh form: %v", f)
	}
	cred, err := repo.GetCredential(context.Background(), m.DB, "u")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cred.AccessToken != "new-access" || cred.RefreshToken != "new-refresh" || cred.Scopes != "ag1 offline_access" {
		t.Fatalf("credential not updated: %+v", cred)
	}
	if m.IsExpired(cred) {
		t.Fatalf("refreshed credential must be valid, expires %s", cred.ExpiresAt)
	}
}

func TestTokenStatus_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	o := newOAuthServer(t)
	o.set(http.StatusOK, map[string]any{"access_token": "a2", "token_type": "Bearer"})
	m := newTestTokenManager(t, o)
	seedCredential(t, m, "u", time.Now().Add(-time.Minute), "r1")

	before := time.Now()
	if _, err := m.TokenStatus(context.Background(), "u"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	cred, _ := repo.GetCredential(context.Background(), m.DB, "u")
	if cred.RefreshToken != "r1" {
		t.Fatalf("refresh token = %q; want r1", cred.RefreshToken)
	}
	if cred.ExpiresAt.Before(before.Add(DefaultTokenLifetime - time.Minute)) {
		t.Fatalf("default lifetime not applied: %s", cred.ExpiresAt)
	}
}

func TestTokenStatus_ConcurrentCallersRefreshOnce(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)
	seedCredential(t, m, "u", time.Now().Add(-time.Minute), "r1")

	const n = 8
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.TokenStatus(context.Background(), "u")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil || tokens[i] != "new-access" {
			t.Fatalf("caller %d: %q, %v", i, tokens[i], errs[i])
		}
	}
	if got := o.refreshes.Load(); got != 1 {
		t.Fatalf("refresh calls = %d; want 1", got)
	}
	if m.locks.size() != 0 {
		t.Fatalf("lock entries leaked: %d", m.locks.size())
	}
}

func TestTokenStatus_RefreshFailure(t *testing.T) {
	o := newOAuthServer(t)
	o.set(http.StatusBadRequest, nil)
	m := newTestTokenManager(t, o)
	seedCredential(t, m, "u", time.Now().Add(-time.Minute), "r1")

	_, err := m.TokenStatus(context.Background(), "u")
	var rerr *AuthRefreshError
	if !errors.As(err, &rerr) || rerr.UserID != "u" {
		t.Fatalf("expected AuthRefreshError for u, got %v", err)
	}
	cred, _ := repo.GetCredential(context.Background(), m.DB, "u")
	if cred.AccessToken != "old-access" || cred.RefreshToken != "r1" {
		t.Fatalf("stored credential changed on failure: %+v", cred)
	}
}

func TestAuthorizationFlow_StateConsumedOnce(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)
	ctx := context.Background()

	authURL, state, err := m.BeginAuthorization(ctx, "farmer-1", "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(state) < 40 {
		t.Fatalf("state too short: %q", state)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != state || q.Get("client_id") != "cid" || q.Get("response_type") != "code" || q.Get("scope") != "ag1 offline_access" {
		t.Fatalf("unexpected auth url: %s", authURL)
	}

	farmer, err := m.ConsumeState(ctx, state)
	if err != nil || farmer != "farmer-1" {
		t.Fatalf("consume: %q, %v", farmer, err)
	}
	if _, err := m.ConsumeState(ctx, state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second consume: %v", err)
	}

	cred, err := m.ExchangeCode(ctx, "the-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if o.form().Get("code") != "the-code" || o.exchanges.Load() != 1 {
		t.Fatalf("exchange not sent as expected: %v", o.form())
	}
	if err := m.SaveCredential(ctx, farmer, cred); err != nil {
		t.Fatalf("save: %v", err)
	}
	tok, ok := m.GetValidToken(ctx, "farmer-1")
	if !ok || tok != "new-access" {
		t.Fatalf("GetValidToken = %q, %v", tok, ok)
	}
}

func TestExchangeCode_Errors(t *testing.T) {
	o := newOAuthServer(t)
	m := newTestTokenManager(t, o)

	if _, err := m.ExchangeCode(context.Background(), "  "); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
	o.set(http.StatusBadRequest, nil)
	_, err := m.ExchangeCode(context.Background(), "bad")
	var xerr *AuthExchangeError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected AuthExchangeError, got %v", err)
	}
}
