// Package services – TokenManager
//
// TokenManager owns the OAuth2 credential lifecycle for farmers: starting the
// authorization-code flow, consuming the CSRF state on callback, exchanging
// the code, and refreshing expired access tokens. It is the only writer of
// the credentials table.
//
// Failure reporting has two levels. TokenStatus distinguishes "no
// credential", "no refresh token" and "refresh failed"; GetValidToken
// collapses all of them into ("", false) for callers that only need a
// bearer token.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/observability"
	"github.com/agricapture/fieldsync/internal/repo"
)

const (
	// ExpiryMargin treats tokens expiring within this window as expired.
	ExpiryMargin = 5 * time.Minute

	// DefaultTokenLifetime applies when the provider omits expires_in.
	DefaultTokenLifetime = 43200 * time.Second

	defaultStateTTL = 10 * time.Minute
	stateBytes      = 32
)

// CredentialRepo is the persistence contract of TokenManager.
type CredentialRepo interface {
	GetCredential(ctx context.Context, db *gorm.DB, userID string) (*domain.Credential, error)
	SaveCredential(ctx context.Context, db *gorm.DB, cred *domain.Credential) error
	CreateAuthState(ctx context.Context, db *gorm.DB, state, farmerID string, ttl time.Duration) (*domain.AuthState, error)
	ConsumeAuthState(ctx context.Context, db *gorm.DB, state string, now time.Time) (string, error)
}

// TokenManager manages per-farmer OAuth credentials.
type TokenManager struct {
	DB    *gorm.DB
	Repo  CredentialRepo
	OAuth *oauth2.Config

	// StateTTL bounds how long an issued state can be redeemed.
	StateTTL time.Duration
	// HTTPClient, when set, is used for token endpoint calls.
	HTTPClient *http.Client
	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	locks keyedMutex
}

// NewTokenManager builds a TokenManager from the OAuth settings. The client
// id, redirect URI and both provider endpoints are required.
func NewTokenManager(db *gorm.DB, r CredentialRepo, cfg config.OAuthConfig) (*TokenManager, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("CLIENT_ID is required")
	}
	if cfg.RedirectURI == "" || cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("REDIRECT_URI, AUTHORIZATION_URL and TOKEN_URL are required")
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &TokenManager{
		DB:   db,
		Repo: r,
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		StateTTL: ttl,
	}, nil
}

func (m *TokenManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	if m.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}
	return ctx
}

// BeginAuthorization issues a state for farmerID and returns the provider
// authorization URL. An empty state is replaced by 32 random bytes,
// URL-safe encoded.
func (m *TokenManager) BeginAuthorization(ctx context.Context, farmerID, state string) (string, string, error) {
	if state == "" {
		buf := make([]byte, stateBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", "", err
		}
		state = base64.RawURLEncoding.EncodeToString(buf)
	}
	if _, err := m.Repo.CreateAuthState(ctx, m.DB, state, farmerID, m.StateTTL); err != nil {
		return "", "", persistErr("create auth state", err)
	}
	return m.OAuth.AuthCodeURL(state), state, nil
}

// ConsumeState redeems state exactly once and returns the farmer it was
// issued for.
func (m *TokenManager) ConsumeState(ctx context.Context, state string) (string, error) {
	farmerID, err := m.Repo.ConsumeAuthState(ctx, m.DB, state, m.now())
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", persistErr("consume auth state", err)
	}
	return farmerID, nil
}

// ExchangeCode trades an authorization code for a credential. The result is
// not persisted; see SaveCredential.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (*domain.Credential, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}
	tok, err := m.OAuth.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return nil, &AuthExchangeError{Err: err}
	}
	return m.credentialFrom(tok, ""), nil
}

// Refresh runs the refresh-token grant. When the provider does not rotate
// the refresh token the previous one is kept.
func (m *TokenManager) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	src := m.OAuth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, &AuthRefreshError{Err: err}
	}
	return m.credentialFrom(tok, refreshToken), nil
}

func (m *TokenManager) credentialFrom(tok *oauth2.Token, priorRefresh string) *domain.Credential {
	exp := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		exp = m.now().Add(DefaultTokenLifetime)
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	scopes, _ := tok.Extra("scope").(string)
	return &domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		TokenType:    tokenType,
		Scopes:       scopes,
		ExpiresAt:    exp,
	}
}

// IsExpired reports whether cred must be refreshed before use.
func (m *TokenManager) IsExpired(cred *domain.Credential) bool {
	if cred == nil || cred.ExpiresAt.IsZero() {
		return true
	}
	return !m.now().Before(cred.ExpiresAt.Add(-ExpiryMargin))
}

// SaveCredential stores cred as the credential of userID.
func (m *TokenManager) SaveCredential(ctx context.Context, userID string, cred *domain.Credential) error {
	cred.UserID = userID
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = m.now().Add(DefaultTokenLifetime)
	}
	return persistErr("save credential", m.Repo.SaveCredential(ctx, m.DB, cred))
}

// TokenStatus returns a usable access token for userID, refreshing and
// persisting a new one when needed. Refreshes for one user are serialized,
// so concurrent callers trigger at most one provider call.
func (m *TokenManager) TokenStatus(ctx context.Context, userID string) (string, error) {
	tr := otel.Tracer("services/TokenManager")
	ctx, span := tr.Start(ctx, "TokenStatus", trace.WithAttributes(attribute.String("farmer.id", userID)))
	defer span.End()

	unlock := m.locks.Lock(userID)
	defer unlock()

	cred, err := m.Repo.GetCredential(ctx, m.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", persistErr("load credential", err)
	}
	if !m.IsExpired(cred) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	span.AddEvent("refresh")
	fresh, err := m.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		observability.TokenRefreshes.WithLabelValues("failure").Inc()
		var rerr *AuthRefreshError
		if errors.As(err, &rerr) {
			rerr.UserID = userID
		}
		span.SetStatus(codes.Error, "refresh failed")
		return "", err
	}
	observability.TokenRefreshes.WithLabelValues("success").Inc()
	fresh.CreatedAt = cred.CreatedAt
	if err := m.SaveCredential(ctx, userID, fresh); err != nil {
		return "", err
	}
	log.Info().Str("farmer_id", userID).Time("expires_at", fresh.ExpiresAt).Msg("access token refreshed")
	return fresh.AccessToken, nil
}

// GetValidToken is TokenStatus with every failure collapsed to false. The
// reason is logged, never returned.
func (m *TokenManager) GetValidToken(ctx context.Context, userID string) (string, bool) {
	tok, err := m.TokenStatus(ctx, userID)
	if err != nil {
		var rerr *AuthRefreshError
		ev := log.Debug()
		if errors.As(err, &rerr) {
			ev = log.Warn()
		}
		ev.Err(err).Str("farmer_id", userID).Msg("no valid access token")
		return "", false
	}
	return tok, true
}
