// Command server runs the fieldsync HTTP API together with the optional
// in-process autosync ticker.
//
//	@title			Fieldsync API
//	@version		1.0
//	@description	Synchronizes farm organizations, fields and field operations from the farm-management platform into a local store.
//	@BasePath		/
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agricapture/fieldsync/internal/app"
	"github.com/agricapture/fieldsync/internal/config"
	httpapi "github.com/agricapture/fieldsync/internal/http"
	"github.com/agricapture/fieldsync/internal/observability"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	authStatePurgeInterval = 15 * time.Minute
	shutdownGrace          = 20 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{
		Version:     version,
		Environment: cfg.Remote.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	a, err := app.New(ctx, db, cfg)
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".xlsx"})))
	httpapi.RegisterRoutes(r, a, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.Remote.Environment).
			Str("api_base", cfg.APIBasePath).
			Str("version", version).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(c)
	})
	g.Go(func() error {
		app.Every(gctx, "purge_auth_states", authStatePurgeInterval, a.PurgeAuthStates)
		return nil
	})

	// config validation guarantees a farmer whenever the interval is set
	if farmer := cfg.Sync.AutoSyncFarmerID; cfg.Sync.AutoSyncInterval > 0 {
		g.Go(func() error {
			app.Every(gctx, "autosync", cfg.Sync.AutoSyncInterval, func(ctx context.Context) error {
				return a.AutoSync(ctx, farmer)
			})
			return nil
		})
	}

	return g.Wait()
}
