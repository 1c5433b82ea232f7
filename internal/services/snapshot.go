package services

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/normalize"
	"github.com/agricapture/fieldsync/internal/repo"
)

// SnapshotRepo is the read contract of SnapshotService.
type SnapshotRepo interface {
	ListOrganizations(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.Organization, error)
	ListFields(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Field, error)
	ListNormalizedOperations(ctx context.Context, db *gorm.DB, f repo.NormalizedFilter) ([]domain.NormalizedOperation, error)
}

// SnapshotBoundary is one field boundary as GeoJSON.
type SnapshotBoundary struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty" swaggertype:"object"`
	Area     *float64        `json:"area,omitempty"`
	AreaUnit string          `json:"area_unit"`
	Active   bool            `json:"active"`
}

// SnapshotField is a field with its boundaries and operations.
type SnapshotField struct {
	ID         string                       `json:"id"`
	Name       string                       `json:"name"`
	Boundaries []SnapshotBoundary           `json:"boundaries"`
	Operations []domain.NormalizedOperation `json:"operations"`
}

// SnapshotFarm groups fields. The platform has no farm level, so every
// organization gets one default farm.
type SnapshotFarm struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Fields []SnapshotField `json:"fields"`
}

// SnapshotOrganization is the top of the hierarchy.
type SnapshotOrganization struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Type  string         `json:"type"`
	Farms []SnapshotFarm `json:"farms"`
}

// SnapshotSyncInfo describes how the snapshot was produced.
type SnapshotSyncInfo struct {
	Mode                domain.SyncMode `json:"mode"`
	LookbackYears       int             `json:"lookback_years"`
	SnapshotGeneratedAt time.Time       `json:"snapshot_generated_at"`
	Sweep               *SweepReport    `json:"sweep,omitempty"`
}

// FarmerSnapshot is the full organization → farm → field tree of a farmer.
type FarmerSnapshot struct {
	FarmerID        string                 `json:"farmer_id"`
	Organizations   []SnapshotOrganization `json:"organizations"`
	SyncInfo        SnapshotSyncInfo       `json:"sync_info"`
	TotalFields     int                    `json:"total_fields"`
	TotalOperations int                    `json:"total_operations"`
}

// SnapshotRequest configures Build. With Refresh set, a sweep in Mode runs
// before the tree is read from the local store.
type SnapshotRequest struct {
	FarmerID      string
	Mode          domain.SyncMode
	LookbackYears int
	Refresh       bool
}

// SnapshotService assembles farmer snapshots.
type SnapshotService struct {
	DB   *gorm.DB
	Repo SnapshotRepo
	Sync *SyncService
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Build returns the farmer's snapshot. ErrOrganizationNotFound is returned
// when no organization is stored for the farmer.
func (s *SnapshotService) Build(ctx context.Context, req SnapshotRequest) (*FarmerSnapshot, error) {
	tr := otel.Tracer("services/SnapshotService")
	ctx, span := tr.Start(ctx, "Build", trace.WithAttributes(
		attribute.String("farmer.id", req.FarmerID),
		attribute.Bool("snapshot.refresh", req.Refresh),
	))
	defer span.End()

	if req.Mode == "" {
		req.Mode = domain.ModeFullHistory
	}
	if !req.Mode.Valid() {
		return nil, ErrInvalidMode
	}
	if req.LookbackYears <= 0 {
		req.LookbackYears = DefaultLookbackYears
	}

	snap := &FarmerSnapshot{
		FarmerID:      req.FarmerID,
		Organizations: []SnapshotOrganization{},
		SyncInfo:      SnapshotSyncInfo{Mode: req.Mode, LookbackYears: req.LookbackYears},
	}

	if req.Refresh && s.Sync != nil {
		report, err := s.Sync.SyncFarmer(ctx, SweepRequest{
			FarmerID:      req.FarmerID,
			Mode:          req.Mode,
			LookbackYears: req.LookbackYears,
		})
		if err != nil {
			return nil, err
		}
		snap.SyncInfo.Sweep = report
	}

	orgs, err := s.Repo.ListOrganizations(ctx, s.DB, req.FarmerID)
	if err != nil {
		return nil, persistErr("list organizations", err)
	}
	if len(orgs) == 0 {
		return nil, ErrOrganizationNotFound
	}

	for _, o := range orgs {
		name := o.Name
		if name == "" {
			name = o.OrgID
		}
		typ := o.Type
		if typ == "" {
			typ = "unknown"
		}
		so := SnapshotOrganization{ID: o.OrgID, Name: name, Type: typ, Farms: []SnapshotFarm{}}

		fields, err := s.Repo.ListFields(ctx, s.DB, o.OrgID)
		if err != nil {
			return nil, persistErr("list fields", err)
		}
		farm := SnapshotFarm{ID: o.OrgID + "-farm-default", Name: name + " Farm"}
		for _, f := range fields {
			ops, err := s.Repo.ListNormalizedOperations(ctx, s.DB, repo.NormalizedFilter{FieldID: f.FieldID, LatestOnly: true})
			if err != nil {
				return nil, persistErr("list operations", err)
			}
			if ops == nil {
				ops = []domain.NormalizedOperation{}
			}
			fname := f.Name
			if fname == "" {
				fname = f.FieldID
			}
			farm.Fields = append(farm.Fields, SnapshotField{
				ID:         f.FieldID,
				Name:       fname,
				Boundaries: snapshotBoundaries(f),
				Operations: ops,
			})
			snap.TotalFields++
			snap.TotalOperations += len(ops)
		}
		if len(farm.Fields) > 0 {
			so.Farms = append(so.Farms, farm)
		}
		snap.Organizations = append(snap.Organizations, so)
	}

	snap.SyncInfo.SnapshotGeneratedAt = s.now()
	span.SetAttributes(attribute.Int("snapshot.fields", snap.TotalFields))
	return snap, nil
}

func (s *SnapshotService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// snapshotBoundaries decodes the stored platform boundaries of f.
func snapshotBoundaries(f domain.Field) []SnapshotBoundary {
	out := []SnapshotBoundary{}
	if len(f.Boundaries) == 0 {
		return out
	}
	var raw []jdoc.Boundary
	if err := json.Unmarshal(f.Boundaries, &raw); err != nil {
		return out
	}
	for _, b := range raw {
		sb := SnapshotBoundary{
			ID:       b.ID,
			Name:     b.Name,
			Area:     b.Area.Number(),
			AreaUnit: normalize.DefaultAreaUnit,
			Active:   b.Active == nil || *b.Active,
		}
		if sb.ID == "" {
			sb.ID = "unknown"
		}
		if g := BoundaryGeoJSON(b); g != nil {
			sb.Geometry = json.RawMessage(g)
		}
		out = append(out, sb)
	}
	return out
}
