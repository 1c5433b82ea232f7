package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/normalize"
)

// HierarchyRepo persists the organization/field tree fetched from the platform.
type HierarchyRepo interface {
	UpsertOrganization(ctx context.Context, db *gorm.DB, org *domain.Organization) error
	ListOrganizations(ctx context.Context, db *gorm.DB, farmerID string) ([]domain.Organization, error)
	GetOrganization(ctx context.Context, db *gorm.DB, orgID string) (*domain.Organization, error)
	UpsertField(ctx context.Context, db *gorm.DB, f *domain.Field) error
	ListFields(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Field, error)
	GetField(ctx context.Context, db *gorm.DB, fieldID string) (*domain.Field, error)
}

// RemoteClient is the subset of the platform client used by the services.
type RemoteClient interface {
	ListOrganizations(ctx context.Context, userID string) ([]jdoc.Organization, error)
	ListFields(ctx context.Context, userID, orgID string, includeBoundaries bool) ([]jdoc.Field, error)
	ListFieldOperations(ctx context.Context, userID, orgID, fieldID string, start, end *time.Time) ([]json.RawMessage, error)
}

// OrganizationStore persists organizations handed over by the platform
// client. It implements jdoc.OrganizationSink.
type OrganizationStore struct {
	DB   *gorm.DB
	Repo HierarchyRepo
}

// SaveOrganization upserts org as belonging to farmerID.
func (s *OrganizationStore) SaveOrganization(ctx context.Context, farmerID string, org jdoc.Organization) error {
	return persistErr("save organization", s.Repo.UpsertOrganization(ctx, s.DB, OrganizationFromRemote(farmerID, org)))
}

// OrganizationFromRemote maps a platform organization onto its stored form.
// An organization is enabled when the platform offers a manage_connection
// link for it.
func OrganizationFromRemote(farmerID string, org jdoc.Organization) *domain.Organization {
	out := &domain.Organization{
		OrgID:    org.ID,
		FarmerID: farmerID,
		Name:     org.Name,
		Type:     org.Type,
		Country:  strings.TrimSpace(org.Country),
		TimeZone: strings.TrimSpace(org.TimeZone),
	}
	_, out.IsEnabled = org.Link(jdoc.RelManageConnection)
	out.ConnectionsURI, _ = org.Link(jdoc.RelConnections)
	if len(org.Links) > 0 {
		if b, err := json.Marshal(org.Links); err == nil {
			out.Links = datatypes.JSON(b)
		}
	}
	return out
}

// FieldFromRemote maps a platform field onto its stored form. Area and
// geometry come from the first boundary; all boundaries are kept verbatim.
func FieldFromRemote(orgID string, f jdoc.Field) *domain.Field {
	out := &domain.Field{
		FieldID:    f.ID,
		OrgID:      orgID,
		Name:       strings.TrimSpace(f.Name),
		ExternalID: strings.TrimSpace(f.ExternalID),
	}
	if len(f.Boundaries) > 0 {
		b := f.Boundaries[0]
		out.Area = b.Area.Number()
		if out.Area != nil {
			out.AreaUnit = normalize.DefaultAreaUnit
			if b.Area.Unit != "" {
				out.AreaUnit = b.Area.Unit
			}
		}
		if g := BoundaryGeoJSON(b); g != nil {
			out.Geometry = g
		}
		if raw, err := json.Marshal(f.Boundaries); err == nil {
			out.Boundaries = datatypes.JSON(raw)
		}
	}
	return out
}

// geoPolygon is a GeoJSON Polygon geometry.
type geoPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// BoundaryGeoJSON converts the first ring of the first multipolygon into a
// GeoJSON Polygon with [lon, lat] positions. It returns nil when the
// boundary carries no points.
func BoundaryGeoJSON(b jdoc.Boundary) datatypes.JSON {
	if len(b.Multipolygons) == 0 || len(b.Multipolygons[0].Rings) == 0 {
		return nil
	}
	pts := b.Multipolygons[0].Rings[0].Points
	if len(pts) == 0 {
		return nil
	}
	ring := make([][2]float64, len(pts))
	for i, p := range pts {
		ring[i] = [2]float64{p.Lon, p.Lat}
	}
	raw, err := json.Marshal(geoPolygon{Type: "Polygon", Coordinates: [][][2]float64{ring}})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// HierarchyService serves live organization and field listings and keeps
// the local copy of the tree current.
type HierarchyService struct {
	DB     *gorm.DB
	Repo   HierarchyRepo
	Remote RemoteClient
}

// Organizations fetches the farmer's organizations from the platform. The
// client persists each one as a side effect.
func (s *HierarchyService) Organizations(ctx context.Context, farmerID string) ([]*domain.Organization, error) {
	tr := otel.Tracer("services/HierarchyService")
	ctx, span := tr.Start(ctx, "Organizations", trace.WithAttributes(attribute.String("farmer.id", farmerID)))
	defer span.End()

	orgs, err := s.Remote.ListOrganizations(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Organization, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, OrganizationFromRemote(farmerID, o))
	}
	return out, nil
}

// Fields fetches the fields of orgID with boundaries and stores them.
func (s *HierarchyService) Fields(ctx context.Context, farmerID, orgID string) ([]*domain.Field, error) {
	tr := otel.Tracer("services/HierarchyService")
	ctx, span := tr.Start(ctx, "Fields", trace.WithAttributes(
		attribute.String("farmer.id", farmerID),
		attribute.String("org.id", orgID),
	))
	defer span.End()

	fields, err := s.Remote.ListFields(ctx, farmerID, orgID, true)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Field, 0, len(fields))
	for _, f := range fields {
		df := FieldFromRemote(orgID, f)
		if err := s.Repo.UpsertField(ctx, s.DB, df); err != nil {
			// The org row may be missing when fields are requested before
			// the organizations were ever listed; the listing still succeeds.
			log.Warn().Err(err).Str("org_id", orgID).Str("field_id", f.ID).Msg("field not stored")
		}
		out = append(out, df)
	}
	return out, nil
}
