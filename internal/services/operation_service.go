package services

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/export"
	"github.com/agricapture/fieldsync/internal/repo"
)

// OperationRepo is the read contract of OperationService.
type OperationRepo interface {
	ListNormalizedOperations(ctx context.Context, db *gorm.DB, f repo.NormalizedFilter) ([]domain.NormalizedOperation, error)
	CountNormalizedOperations(ctx context.Context, db *gorm.DB, f repo.NormalizedFilter) (int64, error)
	ListSyncStates(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.SyncState, error)
	CollectStats(ctx context.Context, db *gorm.DB) (*repo.Stats, error)
}

// OperationService exposes stored operations, sync states and stats.
type OperationService struct {
	DB     *gorm.DB
	Repo   OperationRepo
	Remote RemoteClient
}

// Raw fetches field operations straight from the platform without storing
// them. Nil bounds are not sent.
func (s *OperationService) Raw(ctx context.Context, farmerID, orgID, fieldID string, start, end *time.Time) ([]json.RawMessage, error) {
	tr := otel.Tracer("services/OperationService")
	ctx, span := tr.Start(ctx, "Raw", trace.WithAttributes(attribute.String("field.id", fieldID)))
	defer span.End()
	return s.Remote.ListFieldOperations(ctx, farmerID, orgID, fieldID, start, end)
}

// NormalizedPage returns one page of stored normalized operations and the
// total number of matches.
func (s *OperationService) NormalizedPage(ctx context.Context, f repo.NormalizedFilter) ([]domain.NormalizedOperation, int64, error) {
	tr := otel.Tracer("services/OperationService")
	ctx, span := tr.Start(ctx, "NormalizedPage", trace.WithAttributes(
		attribute.String("field.id", f.FieldID),
		attribute.Int("page.offset", f.Offset),
		attribute.Int("page.limit", f.Limit),
	))
	defer span.End()

	total, err := s.Repo.CountNormalizedOperations(ctx, s.DB, f)
	if err != nil {
		return nil, 0, persistErr("count operations", err)
	}
	ops, err := s.Repo.ListNormalizedOperations(ctx, s.DB, f)
	if err != nil {
		return nil, 0, persistErr("list operations", err)
	}
	return ops, total, nil
}

// Export writes the latest normalized version of every operation of the
// farmer as an XLSX workbook.
func (s *OperationService) Export(ctx context.Context, farmerID string, w io.Writer) (int, error) {
	tr := otel.Tracer("services/OperationService")
	ctx, span := tr.Start(ctx, "Export", trace.WithAttributes(attribute.String("farmer.id", farmerID)))
	defer span.End()

	ops, err := s.Repo.ListNormalizedOperations(ctx, s.DB, repo.NormalizedFilter{FarmerID: farmerID, LatestOnly: true})
	if err != nil {
		return 0, persistErr("list operations", err)
	}
	return len(ops), export.WriteOperations(w, ops)
}

// SyncStates lists the stored sync watermarks of a farmer.
func (s *OperationService) SyncStates(ctx context.Context, farmerID string) ([]domain.SyncState, error) {
	states, err := s.Repo.ListSyncStates(ctx, s.DB, farmerID)
	return states, persistErr("list sync states", err)
}

// Stats reports aggregate counts over the local store.
func (s *OperationService) Stats(ctx context.Context) (*repo.Stats, error) {
	st, err := s.Repo.CollectStats(ctx, s.DB)
	return st, persistErr("collect stats", err)
}
