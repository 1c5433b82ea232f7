// Package app assembles the sync engine from configuration: the platform
// client, the token manager, every service, and the optional raw archive.
// Both the HTTP server and the autosync command build on it.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/secrets"
	"github.com/agricapture/fieldsync/internal/services"
)

// clientSecretKey is looked up when CLIENT_SECRET_ARN points at a JSON secret.
const clientSecretKey = "client_secret"

// SecretReader resolves a secret value by id.
type SecretReader interface {
	Value(ctx context.Context, id, key string) (string, error)
}

// App holds the wired services.
type App struct {
	DB         *gorm.DB
	Tokens     *services.TokenManager
	Remote     *jdoc.Client
	Hierarchy  *services.HierarchyService
	Sync       *services.SyncService
	Snapshot   *services.SnapshotService
	Operations *services.OperationService

	// Archive is nil unless ARCHIVE_ENABLED.
	Archive *archive.Client
}

// Option customizes New.
type Option func(*options)

type options struct {
	secrets SecretReader
	archive *archive.Client
}

// WithSecrets replaces the Secrets Manager resolver.
func WithSecrets(r SecretReader) Option { return func(o *options) { o.secrets = r } }

// WithArchive uses a prebuilt archive client instead of building one from
// the configuration.
func WithArchive(c *archive.Client) Option { return func(o *options) { o.archive = c } }

// New wires every service on top of db.
func New(ctx context.Context, db *gorm.DB, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	if err := resolveClientSecret(ctx, &cfg, o.secrets); err != nil {
		return nil, err
	}

	store := repo.Store{}
	tokens, err := services.NewTokenManager(db, store, cfg.OAuth)
	if err != nil {
		return nil, err
	}

	remote := jdoc.NewClient(cfg.Remote.BaseURL, tokens,
		jdoc.WithTimeout(cfg.Remote.Timeout),
		jdoc.WithRateLimit(cfg.Remote.RPS, cfg.Remote.Burst),
		jdoc.WithOrganizationSink(&services.OrganizationStore{DB: db, Repo: store}),
	)

	syncSvc := services.NewSyncService(db, store, remote)
	syncSvc.Tokens = tokens
	if cfg.Sync.LookbackYears > 0 {
		syncSvc.LookbackYears = cfg.Sync.LookbackYears
	}
	if cfg.Sync.OrgConcurrency > 0 {
		syncSvc.OrgConcurrency = cfg.Sync.OrgConcurrency
	}

	arc := o.archive
	if arc == nil && cfg.Archive.Enabled {
		if arc, err = archive.New(ctx, cfg.Archive); err != nil {
			return nil, err
		}
	}
	if arc != nil {
		// assigned only when set: a nil *archive.Client must not become a
		// non-nil RawArchiver
		syncSvc.Archive = arc
	}

	log.Info().
		Str("remote", remote.BaseURL()).
		Int("lookback_years", syncSvc.LookbackYears).
		Int("org_concurrency", syncSvc.OrgConcurrency).
		Bool("archive", arc != nil).
		Msg("sync engine ready")

	return &App{
		DB:         db,
		Tokens:     tokens,
		Remote:     remote,
		Hierarchy:  &services.HierarchyService{DB: db, Repo: store, Remote: remote},
		Sync:       syncSvc,
		Snapshot:   &services.SnapshotService{DB: db, Repo: store, Sync: syncSvc},
		Operations: &services.OperationService{DB: db, Repo: store, Remote: remote},
		Archive:    arc,
	}, nil
}

// resolveClientSecret fills OAuth.ClientSecret from Secrets Manager when
// only CLIENT_SECRET_ARN is configured.
func resolveClientSecret(ctx context.Context, cfg *config.Config, r SecretReader) error {
	if cfg.OAuth.ClientSecret != "" || cfg.OAuth.ClientSecretARN == "" {
		return nil
	}
	if r == nil {
		res, err := secrets.NewResolver(ctx, cfg.Archive.Region)
		if err != nil {
			return err
		}
		r = res
	}
	v, err := r.Value(ctx, cfg.OAuth.ClientSecretARN, clientSecretKey)
	if err != nil {
		return fmt.Errorf("resolve client secret: %w", err)
	}
	cfg.OAuth.ClientSecret = v
	log.Info().Msg("client secret loaded from secrets manager")
	return nil
}
