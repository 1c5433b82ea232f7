package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/services"
)

// platformStub serves two organizations: o1 with two fields and o2 whose
// field listing fails. The operations of f1 span two pages and include
// loosely typed records.
func platformStub(t *testing.T, badAuth *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			badAuth.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/platform/organizations":
			fmt.Fprint(w, `{"values":[
				{"id":"o1","name":"North Farms","type":"customer","country":"US","timeZone":"America/Chicago",
				 "links":[{"rel":"manage_connection","uri":"https://connections.example/o1"}]},
				{"id":"o2","name":"South Farms","type":"customer"}]}`)
		case "/platform/organizations/o1/fields":
			fmt.Fprint(w, `{"values":[
				{"id":"f1","name":"Back 40","externalId":"CLU-17","boundaries":[{"id":"b1","area":{"valueAsDouble":16.2,"unit":"ha"},
				 "multipolygons":[{"rings":[{"type":"exterior","points":[{"lat":41,"lon":-93},{"lat":41,"lon":-92.9},{"lat":41.1,"lon":-92.9},{"lat":41,"lon":-93}]}]}]}]},
				{"id":"f2","name":"Creek"}]}`)
		case "/platform/organizations/o2/fields":
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		case "/platform/organizations/o1/fields/f1/fieldOperations":
			if r.URL.Query().Get("pageOffset") == "" {
				fmt.Fprint(w, `{"values":[
					{"id":"op-1","fieldOperationType":"seeding","startDate":"2024-04-20T08:00:00Z","cropName":"CORN_WET",
					 "varieties":[{"name":"DKC63-42","productType":"SEED"}],"area":{"valueAsDouble":16.2,"unit":"ha"}},
					{"id":"op-2","fieldOperationType":"application","startDate":1714000000000,
					 "resources":[{"product":{"name":"UAN 32","productType":"FERTILIZER"},"rate":{"value":"150","unit":"l1ha-1"}}]},
					{"id":"op-3","fieldOperationType":"tillage","startDate":"2024-04-01 10:00:00"}],
					"links":[{"rel":"nextPage","uri":"/platform/organizations/o1/fields/f1/fieldOperations?pageOffset=3"}]}`)
				return
			}
			fmt.Fprint(w, `{"values":[
				{"id":"op-4","fieldOperationType":"harvest","endDate":"2024-10-02T15:04Z","area":{"value":"n/a"}},
				{"id":"op-5","fieldOperationType":"seeding","startDate":"2024-05-01","varieties":["DKC63"]}]}`)
		case "/platform/organizations/o1/fields/f2/fieldOperations":
			fmt.Fprint(w, `{"values":[{"id":"op-6","fieldOperationType":"harvest","startDate":"2024-09-30T12:00:00Z"}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func countRows(t *testing.T, a *App, model any) int64 {
	t.Helper()
	var n int64
	if err := a.DB.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func TestSyncFarmer_EndToEndOnSQLiteFile(t *testing.T) {
	ctx := context.Background()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "fieldsync.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	var badAuth atomic.Int32
	srv := platformStub(t, &badAuth)
	cfg := testConfig()
	cfg.Remote.BaseURL = srv.URL + "/platform"

	a, err := New(ctx, db, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Tokens.SaveCredential(ctx, "farmer-1", &domain.Credential{
		AccessToken: "tok-1", RefreshToken: "r-1", ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	report, err := a.Sync.SyncFarmer(ctx, services.SweepRequest{FarmerID: "farmer-1", Mode: domain.ModeFullHistory})
	if err != nil {
		t.Fatalf("SyncFarmer: %v", err)
	}
	if badAuth.Load() != 0 {
		t.Fatalf("%d request(s) without the stored token", badAuth.Load())
	}
	if report.Organizations != 2 || report.OrganizationsSkipped != 1 {
		t.Fatalf("organizations=%d skipped=%d", report.Organizations, report.OrganizationsSkipped)
	}
	if report.FieldsSynced != 2 || report.FieldsFailed != 0 {
		t.Fatalf("fields synced=%d failed=%d: %+v", report.FieldsSynced, report.FieldsFailed, report.Orgs)
	}
	if report.RawOperations != 6 || report.NormalizedOperations != 6 || report.NormalizationFailed != 0 {
		t.Fatalf("raw=%d normalized=%d failed=%d", report.RawOperations, report.NormalizedOperations, report.NormalizationFailed)
	}

	org, err := repo.GetOrganization(ctx, db, "o1")
	if err != nil || org.Country != "US" || org.TimeZone != "America/Chicago" || !org.IsEnabled {
		t.Fatalf("organization o1 = %+v, %v", org, err)
	}
	if _, err := repo.GetOrganization(ctx, db, "o2"); err != nil {
		t.Fatalf("organization o2 should be stored even though its fields failed: %v", err)
	}
	f1, err := repo.GetField(ctx, db, "f1")
	if err != nil || f1.ExternalID != "CLU-17" || f1.Area == nil || len(f1.Geometry) == 0 {
		t.Fatalf("field f1 = %+v, %v", f1, err)
	}

	if n := countRows(t, a, &domain.RawOperation{}); n != 6 {
		t.Fatalf("raw rows = %d", n)
	}
	if n := countRows(t, a, &domain.NormalizedOperation{}); n != 6 {
		t.Fatalf("normalized rows = %d", n)
	}
	if orphans, err := repo.OrphanNormalizedOperations(ctx, db); err != nil || orphans != 0 {
		t.Fatalf("orphans=%d err=%v", orphans, err)
	}
	st, err := repo.GetSyncState(ctx, db, "farmer-1", "o1", "f1")
	if err != nil || st.LastSyncMode != domain.ModeFullHistory || st.LastSyncEndDate == nil {
		t.Fatalf("sync state = %+v, %v", st, err)
	}

	// An incremental rerun refreshes raw rows in place and appends a new
	// normalized set.
	again, err := a.Sync.SyncFarmer(ctx, services.SweepRequest{FarmerID: "farmer-1", Mode: domain.ModeIncremental})
	if err != nil {
		t.Fatalf("incremental SyncFarmer: %v", err)
	}
	if again.FieldsSynced != 2 || again.ColdStarts != 0 {
		t.Fatalf("incremental synced=%d cold=%d", again.FieldsSynced, again.ColdStarts)
	}
	if n := countRows(t, a, &domain.RawOperation{}); n != 6 {
		t.Fatalf("raw rows after rerun = %d", n)
	}
	if n := countRows(t, a, &domain.NormalizedOperation{}); n != 12 {
		t.Fatalf("normalized rows after rerun = %d", n)
	}
}
