// Command autosync runs a single incremental sweep for one farmer and exits.
// It is meant for cron or a scheduled container task:
//
//	autosync -farmer 1234
//
// The farmer defaults to AUTO_SYNC_FARMER_ID. Cold-start fields are re-driven
// in full_history mode. The exit code is non-zero when the sweep aborts.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/agricapture/fieldsync/internal/app"
	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	farmerFlag := flag.String("farmer", "", "farmer identifier (default $AUTO_SYNC_FARMER_ID)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil)

	farmer := sysutil.FirstNonEmpty(*farmerFlag, cfg.Sync.AutoSyncFarmerID)
	if farmer == "" {
		log.Error().Msg("no farmer: pass -farmer or set AUTO_SYNC_FARMER_ID")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	a, err := app.New(ctx, db, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("wire sync engine")
	}
	if err := a.AutoSync(ctx, farmer); err != nil {
		log.Error().Err(err).Str("farmer_id", farmer).Msg("autosync failed")
		os.Exit(1)
	}
}
