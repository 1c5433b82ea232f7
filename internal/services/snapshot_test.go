package services

import (
	"context"
	"errors"
	"testing"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/repo"
)

func TestSnapshot_RefreshBuildsTree(t *testing.T) {
	remote := threeFieldRemote()
	remote.fields["o1"][0].Boundaries = []jdoc.Boundary{squareBoundary()}
	remote.orgs = append(remote.orgs, jdoc.Organization{ID: "o2", Name: "Empty"})
	s, _ := newSyncFixture(t, remote)
	snap := &SnapshotService{DB: s.DB, Repo: repo.Store{}, Sync: s, Now: clockAt(t1)}

	out, err := snap.Build(context.Background(), SnapshotRequest{FarmerID: "u", Refresh: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out.SyncInfo.Mode != domain.ModeFullHistory || out.SyncInfo.LookbackYears != DefaultLookbackYears {
		t.Fatalf("sync info defaults: %+v", out.SyncInfo)
	}
	if out.SyncInfo.Sweep == nil || out.SyncInfo.Sweep.FieldsSynced != 3 {
		t.Fatalf("sweep not reported: %+v", out.SyncInfo.Sweep)
	}
	if !out.SyncInfo.SnapshotGeneratedAt.Equal(t1) {
		t.Fatalf("generated at = %s", out.SyncInfo.SnapshotGeneratedAt)
	}
	if len(out.Organizations) != 2 || out.TotalFields != 3 || out.TotalOperations != 4 {
		t.Fatalf("unexpected totals: orgs=%d fields=%d ops=%d", len(out.Organizations), out.TotalFields, out.TotalOperations)
	}

	var north, empty SnapshotOrganization
	for _, o := range out.Organizations {
		switch o.ID {
		case "o1":
			north = o
		case "o2":
			empty = o
		}
	}
	if len(empty.Farms) != 0 {
		t.Fatalf("organization without fields must have no farm: %+v", empty)
	}
	if len(north.Farms) != 1 || north.Farms[0].ID != "o1-farm-default" || north.Farms[0].Name != "North Farm" {
		t.Fatalf("default farm: %+v", north.Farms)
	}
	var alpha SnapshotField
	for _, f := range north.Farms[0].Fields {
		if f.ID == "A" {
			alpha = f
		}
	}
	if len(alpha.Boundaries) != 1 || alpha.Boundaries[0].AreaUnit != "ha" || !alpha.Boundaries[0].Active || len(alpha.Boundaries[0].Geometry) == 0 {
		t.Fatalf("boundaries of A: %+v", alpha.Boundaries)
	}
	if len(alpha.Operations) != 1 || alpha.Operations[0].OperationType != domain.OperationPlanting {
		t.Fatalf("operations of A: %+v", alpha.Operations)
	}
}

func TestSnapshot_LatestVersionOnly(t *testing.T) {
	s, _ := newSyncFixture(t, threeFieldRemote())
	ctx := context.Background()
	if _, err := s.SyncFarmer(ctx, SweepRequest{FarmerID: "u", Mode: domain.ModeFullHistory}); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	s.Now = clockAt(t1)
	if _, err := s.SyncFarmer(ctx, SweepRequest{FarmerID: "u", Mode: domain.ModeIncremental}); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	snap := &SnapshotService{DB: s.DB, Repo: repo.Store{}}
	out, err := snap.Build(ctx, SnapshotRequest{FarmerID: "u"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out.TotalOperations != 4 {
		t.Fatalf("each operation must appear once, got %d", out.TotalOperations)
	}
	if out.SyncInfo.Sweep != nil {
		t.Fatalf("no sweep expected without refresh")
	}
}

func TestSnapshot_NoOrganizations(t *testing.T) {
	snap := &SnapshotService{DB: newTestDB(t), Repo: repo.Store{}}
	if _, err := snap.Build(context.Background(), SnapshotRequest{FarmerID: "u"}); !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestSnapshot_InvalidMode(t *testing.T) {
	snap := &SnapshotService{DB: newTestDB(t), Repo: repo.Store{}}
	if _, err := snap.Build(context.Background(), SnapshotRequest{FarmerID: "u", Mode: "daily"}); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestSnapshot_AuthFailureDuringRefresh(t *testing.T) {
	remote := threeFieldRemote()
	remote.orgsErr = jdoc.ErrAuthInvalid
	s, _ := newSyncFixture(t, remote)
	snap := &SnapshotService{DB: s.DB, Repo: repo.Store{}, Sync: s}

	if _, err := snap.Build(context.Background(), SnapshotRequest{FarmerID: "u", Refresh: true}); !errors.Is(err, jdoc.ErrAuthInvalid) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
