package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agricapture/fieldsync/internal/repo"
)

// Every runs job once immediately and then on every tick until ctx is done.
// Runs never overlap; a tick that fires during a slow run is dropped.
func Every(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		return
	}
	log.Info().Str("job", name).Dur("interval", interval).Msg("scheduler started")

	run := func() {
		start := time.Now()
		if err := job(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job done")
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", name).Msg("scheduler stopped")
			return
		case <-ticker.C:
			run()
		}
	}
}

// AutoSync runs one incremental sweep for farmerID and re-drives every
// cold-start field in full_history mode.
func (a *App) AutoSync(ctx context.Context, farmerID string) error {
	report, err := a.Sync.AutoSync(ctx, farmerID)
	if err != nil {
		return err
	}
	log.Info().
		Str("farmer_id", farmerID).
		Int("organizations", report.Organizations).
		Int("fields", report.Fields).
		Int("synced", report.FieldsSynced).
		Int("failed", report.FieldsFailed).
		Int("normalized", report.NormalizedOperations).
		Msg("autosync finished")
	return nil
}

// PurgeAuthStates deletes OAuth states that can no longer be redeemed.
func (a *App) PurgeAuthStates(ctx context.Context) error {
	n, err := repo.PurgeExpiredAuthStates(ctx, a.DB, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("purged", n).Msg("expired oauth states removed")
	}
	return nil
}
