package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agricapture/fieldsync/internal/domain"
)

// UpsertOrganization inserts org or refreshes every descriptive column of
// an existing row with the same org_id.
func UpsertOrganization(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"farmer_id", "name", "type", "country", "time_zone",
				"is_enabled", "connections_uri", "links", "updated_at",
			}),
		}).
		Create(org).Error
}

// ListOrganizations returns the organizations last fetched for farmerID,
// ordered by name.
func ListOrganizations(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.Organization, error) {
	var out []domain.Organization
	err := db.WithContext(ctx).
		Where("farmer_id = ?", farmerID).
		Order("name ASC, org_id ASC").
		Find(&out).Error
	return out, err
}

// GetOrganization fetches one organization by id or returns ErrNotFound.
func GetOrganization(ctx context.Context, db *gorm.DB, orgID string) (*domain.Organization, error) {
	var o domain.Organization
	if err := db.WithContext(ctx).Where("org_id = ?", orgID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertField inserts f or refreshes an existing row with the same
// field_id. The owning organization must already exist.
func UpsertField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"org_id", "name", "external_id", "area", "area_unit",
				"geometry", "boundaries", "updated_at",
			}),
		}).
		Create(f).Error
}

// ListFields returns the stored fields of orgID ordered by name.
func ListFields(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Field, error) {
	var out []domain.Field
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("name ASC, field_id ASC").
		Find(&out).Error
	return out, err
}

// GetField fetches one field by id or returns ErrNotFound.
func GetField(ctx context.Context, db *gorm.DB, fieldID string) (*domain.Field, error) {
	var f domain.Field
	if err := db.WithContext(ctx).Where("field_id = ?", fieldID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
