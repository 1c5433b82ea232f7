package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agricapture/fieldsync/internal/domain"
)

// GetSyncState returns the stored window for (farmerID, orgID, fieldID) or
// ErrNotFound when the field was never synced.
func GetSyncState(ctx context.Context, db *gorm.DB, farmerID, orgID, fieldID string) (*domain.SyncState, error) {
	var s domain.SyncState
	err := db.WithContext(ctx).
		Where("farmer_id = ? AND org_id = ? AND field_id = ?", farmerID, orgID, fieldID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSyncState replaces the row keyed by (farmer_id, org_id, field_id).
// Only the latest window is kept.
func UpsertSyncState(ctx context.Context, db *gorm.DB, s *domain.SyncState) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "farmer_id"}, {Name: "org_id"}, {Name: "field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"field_name", "last_synced_at", "last_sync_mode",
				"last_sync_start_date", "last_sync_end_date", "updated_at",
			}),
		}).
		Create(s).Error
}

// ListSyncStates returns every field window stored for farmerID, most
// recently updated first.
func ListSyncStates(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.SyncState, error) {
	var out []domain.SyncState
	err := db.WithContext(ctx).
		Where("farmer_id = ?", farmerID).
		Order("updated_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
