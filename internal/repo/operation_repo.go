package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agricapture/fieldsync/internal/domain"
)

const insertBatchSize = 200

// UpsertRawOperations stores raw payloads keyed by operation_id. A replay of
// an already stored operation refreshes its payload and event dates instead
// of inserting a second row.
func UpsertRawOperations(ctx context.Context, db *gorm.DB, ops []domain.RawOperation) error {
	if len(ops) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range ops {
		if ops[i].CreatedAt.IsZero() {
			ops[i].CreatedAt = now
		}
		ops[i].UpdatedAt = now
	}
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "operation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"field_id", "org_id", "farmer_id", "operation_type",
				"raw_payload", "event_start", "event_end", "updated_at",
			}),
		}).
		CreateInBatches(ops, insertBatchSize).Error
}

// InsertNormalizedOperations appends normalized rows. Rows are never
// updated; every sync produces a fresh set.
func InsertNormalizedOperations(ctx context.Context, db *gorm.DB, ops []domain.NormalizedOperation) error {
	if len(ops) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range ops {
		if ops[i].CreatedAt.IsZero() {
			ops[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(ops, insertBatchSize).Error
}

// PersistOperations writes raw rows and then their normalized rows inside a
// single transaction, so a normalized row is never visible without its raw
// counterpart.
func PersistOperations(ctx context.Context, db *gorm.DB, raws []domain.RawOperation, norms []domain.NormalizedOperation) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := UpsertRawOperations(ctx, tx, raws); err != nil {
			return err
		}
		return InsertNormalizedOperations(ctx, tx, norms)
	})
}

// ListRawOperations returns the stored raw operations of fieldID, newest
// event first.
func ListRawOperations(ctx context.Context, db *gorm.DB, fieldID string) ([]domain.RawOperation, error) {
	var out []domain.RawOperation
	err := db.WithContext(ctx).
		Where("field_id = ?", fieldID).
		Order("event_start DESC, operation_id ASC").
		Find(&out).Error
	return out, err
}

// NormalizedFilter narrows ListNormalizedOperations. Zero values mean
// "no constraint".
type NormalizedFilter struct {
	FarmerID   string
	OrgID      string
	FieldID    string
	Types      []domain.OperationType
	From       *time.Time
	To         *time.Time
	LatestOnly bool // keep only the newest row per operation_id
	Offset     int
	Limit      int
}

func (f NormalizedFilter) apply(q *gorm.DB) *gorm.DB {
	if f.FarmerID != "" {
		q = q.Where("org_id IN (?)", q.Session(&gorm.Session{NewDB: true}).
			Model(&domain.Organization{}).Select("org_id").Where("farmer_id = ?", f.FarmerID))
	}
	if f.OrgID != "" {
		q = q.Where("org_id = ?", f.OrgID)
	}
	if f.FieldID != "" {
		q = q.Where("field_id = ?", f.FieldID)
	}
	if len(f.Types) > 0 {
		q = q.Where("operation_type IN ?", f.Types)
	}
	if f.From != nil {
		q = q.Where("operation_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("operation_date < ?", f.To.UTC())
	}
	if f.LatestOnly {
		q = q.Where(`created_at = (SELECT MAX(n2.created_at) FROM operations_normalized n2
			WHERE n2.operation_id = operations_normalized.operation_id)`)
	}
	return q
}

// ListNormalizedOperations returns normalized rows matching f ordered by
// operation date, then operation id.
func ListNormalizedOperations(ctx context.Context, db *gorm.DB, f NormalizedFilter) ([]domain.NormalizedOperation, error) {
	var out []domain.NormalizedOperation
	q := f.apply(db.WithContext(ctx).Model(&domain.NormalizedOperation{})).
		Order("operation_date ASC, operation_id ASC")
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountNormalizedOperations counts rows matching f, ignoring paging.
func CountNormalizedOperations(ctx context.Context, db *gorm.DB, f NormalizedFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.NormalizedOperation{})).Count(&n).Error
	return n, err
}

// OrphanNormalizedOperations counts normalized rows whose operation_id has
// no raw row. It is zero whenever rows were written through PersistOperations.
func OrphanNormalizedOperations(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.NormalizedOperation{}).
		Where("NOT EXISTS (SELECT 1 FROM operations_raw r WHERE r.operation_id = operations_normalized.operation_id)").
		Count(&n).Error
	return n, err
}
