package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
)

// Store binds the package-level repository functions to a value so it can be
// handed to services that depend on repository interfaces.
type Store struct{}

func (Store) GetCredential(ctx context.Context, db *gorm.DB, userID string) (*domain.Credential, error) {
	return GetCredential(ctx, db, userID)
}

func (Store) SaveCredential(ctx context.Context, db *gorm.DB, cred *domain.Credential) error {
	return SaveCredential(ctx, db, cred)
}

func (Store) CreateAuthState(ctx context.Context, db *gorm.DB, state, farmerID string, ttl time.Duration) (*domain.AuthState, error) {
	return CreateAuthState(ctx, db, state, farmerID, ttl)
}

func (Store) ConsumeAuthState(ctx context.Context, db *gorm.DB, state string, now time.Time) (string, error) {
	return ConsumeAuthState(ctx, db, state, now)
}

func (Store) UpsertOrganization(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return UpsertOrganization(ctx, db, org)
}

func (Store) ListOrganizations(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.Organization, error) {
	return ListOrganizations(ctx, db, farmerID)
}

func (Store) GetOrganization(ctx context.Context, db *gorm.DB, orgID string) (*domain.Organization, error) {
	return GetOrganization(ctx, db, orgID)
}

func (Store) UpsertField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	return UpsertField(ctx, db, f)
}

func (Store) ListFields(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Field, error) {
	return ListFields(ctx, db, orgID)
}

func (Store) GetField(ctx context.Context, db *gorm.DB, fieldID string) (*domain.Field, error) {
	return GetField(ctx, db, fieldID)
}

func (Store) GetSyncState(ctx context.Context, db *gorm.DB, farmerID, orgID, fieldID string) (*domain.SyncState, error) {
	return GetSyncState(ctx, db, farmerID, orgID, fieldID)
}

func (Store) UpsertSyncState(ctx context.Context, db *gorm.DB, s *domain.SyncState) error {
	return UpsertSyncState(ctx, db, s)
}

func (Store) ListSyncStates(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.SyncState, error) {
	return ListSyncStates(ctx, db, farmerID)
}

func (Store) PersistOperations(ctx context.Context, db *gorm.DB, raws []domain.RawOperation, norms []domain.NormalizedOperation) error {
	return PersistOperations(ctx, db, raws, norms)
}

func (Store) ListNormalizedOperations(ctx context.Context, db *gorm.DB, f NormalizedFilter) ([]domain.NormalizedOperation, error) {
	return ListNormalizedOperations(ctx, db, f)
}

func (Store) CountNormalizedOperations(ctx context.Context, db *gorm.DB, f NormalizedFilter) (int64, error) {
	return CountNormalizedOperations(ctx, db, f)
}

func (Store) CollectStats(ctx context.Context, db *gorm.DB) (*Stats, error) {
	return CollectStats(ctx, db)
}
