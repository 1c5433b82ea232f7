package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"github.com/agricapture/fieldsync/internal/domain"
)

func TestUpsertOrganization_RefreshesColumns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertOrganization(ctx, db, &domain.Organization{OrgID: "o1", FarmerID: "f1", Name: "Old", Type: "customer"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := UpsertOrganization(ctx, db, &domain.Organization{OrgID: "o1", FarmerID: "f1", Name: "New", Type: "customer", IsEnabled: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertOrganization(ctx, db, &domain.Organization{OrgID: "o2", FarmerID: "f1", Name: "Alpha"}); err != nil {
		t.Fatalf("insert o2: %v", err)
	}
	if err := UpsertOrganization(ctx, db, &domain.Organization{OrgID: "o3", FarmerID: "f2", Name: "Other"}); err != nil {
		t.Fatalf("insert o3: %v", err)
	}

	got, err := GetOrganization(ctx, db, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "New" || !got.IsEnabled {
		t.Fatalf("org not refreshed: %+v", got)
	}

	list, err := ListOrganizations(ctx, db, "f1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].OrgID != "o2" || list[1].OrgID != "o1" {
		t.Fatalf("unexpected org list: %+v", list)
	}

	if _, err := GetOrganization(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertField_RequiresOrganization(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertField(ctx, db, &domain.Field{FieldID: "x", OrgID: "ghost", Name: "North"}); err == nil {
		t.Fatalf("expected FK violation when organization is missing")
	}

	if err := UpsertOrganization(ctx, db, &domain.Organization{OrgID: "o1", FarmerID: "f1", Name: "Org"}); err != nil {
		t.Fatalf("org: %v", err)
	}
	geom := datatypes.JSON(`{"type":"Polygon","coordinates":[[[1,2],[3,4],[1,2]]]}`)
	if err := UpsertField(ctx, db, &domain.Field{FieldID: "x", OrgID: "o1", Name: "North"}); err != nil {
		t.Fatalf("insert field: %v", err)
	}
	if err := UpsertField(ctx, db, &domain.Field{FieldID: "x", OrgID: "o1", Name: "North 40", Geometry: geom}); err != nil {
		t.Fatalf("upsert field: %v", err)
	}

	f, err := GetField(ctx, db, "x")
	if err != nil {
		t.Fatalf("get field: %v", err)
	}
	if f.Name != "North 40" || len(f.Geometry) == 0 {
		t.Fatalf("field not refreshed: %+v", f)
	}
	fields, err := ListFields(ctx, db, "o1")
	if err != nil || len(fields) != 1 {
		t.Fatalf("expected one field, got %d err=%v", len(fields), err)
	}
}
