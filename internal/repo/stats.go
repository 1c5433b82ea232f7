// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate counts reported by the
// stats endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
)

// Stats summarizes what the service currently holds.
type Stats struct {
	ConnectedFarmers     int64      `json:"connected_farmers"`
	Organizations        int64      `json:"total_organizations"`
	Fields               int64      `json:"total_fields"`
	RawOperations        int64      `json:"raw_operations"`
	NormalizedOperations int64      `json:"normalized_operations"`
	SyncedFields         int64      `json:"synced_fields"`
	LastSync             *time.Time `json:"last_sync"`
}

// CollectStats runs one count per table plus a lookup of the most recent
// sync. LastSync is nil when no field was ever synced.
func CollectStats(ctx context.Context, db *gorm.DB) (*Stats, error) {
	var s Stats
	counts := []struct {
		model any
		dst   *int64
	}{
		{&domain.Credential{}, &s.ConnectedFarmers},
		{&domain.Organization{}, &s.Organizations},
		{&domain.Field{}, &s.Fields},
		{&domain.RawOperation{}, &s.RawOperations},
		{&domain.NormalizedOperation{}, &s.NormalizedOperations},
		{&domain.SyncState{}, &s.SyncedFields},
	}
	for _, c := range counts {
		if err := db.WithContext(ctx).Model(c.model).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if s.SyncedFields == 0 {
		return &s, nil
	}

	// Get latest last_synced_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastSyncedAt *time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.SyncState{}).
		Select("last_synced_at").
		Where("last_synced_at IS NOT NULL").
		Order("last_synced_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	s.LastSync = row.LastSyncedAt
	return &s, nil
}
