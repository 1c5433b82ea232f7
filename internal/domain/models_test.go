package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so references are checked.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func migrateAll(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.AutoMigrate(&Credential{}, &Organization{}, &Field{}, &RawOperation{},
		&NormalizedOperation{}, &SyncState{}, &AuthState{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Credential{}.TableName():          "credentials",
		Organization{}.TableName():        "organizations",
		Field{}.TableName():               "fields",
		RawOperation{}.TableName():        "operations_raw",
		NormalizedOperation{}.TableName(): "operations_normalized",
		SyncState{}.TableName():           "field_sync_state",
		AuthState{}.TableName():           "oauth_states",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestOperationType_Valid(t *testing.T) {
	for _, v := range []OperationType{OperationPlanting, OperationHarvest, OperationTillage, OperationFertilizer, OperationOther} {
		if !v.Valid() {
			t.Fatalf("%q should be valid", v)
		}
	}
	if OperationType("planting").Valid() || OperationType("").Valid() {
		t.Fatalf("lowercase/empty operation types must be invalid")
	}
}

func TestSyncMode_Valid(t *testing.T) {
	if !ModeFullHistory.Valid() || !ModeIncremental.Valid() {
		t.Fatalf("known modes should be valid")
	}
	if SyncMode("delta").Valid() {
		t.Fatalf("unknown mode should be invalid")
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)
	m := db.Migrator()

	for _, tbl := range []any{&Credential{}, &Organization{}, &Field{}, &RawOperation{}, &NormalizedOperation{}, &SyncState{}, &AuthState{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&SyncState{}, "ux_sync_farmer_org_field") {
		t.Fatalf("expected unique index ux_sync_farmer_org_field")
	}
	if !m.HasIndex(&NormalizedOperation{}, "idx_norm_op") {
		t.Fatalf("expected index idx_norm_op on operations_normalized")
	}
	if !m.HasIndex(&Field{}, "idx_field_org") {
		t.Fatalf("expected index idx_field_org on fields")
	}
}

func TestSyncState_UniquePerFarmerOrgField(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	now := time.Now().UTC()
	a := &SyncState{FarmerID: "f", OrgID: "o", FieldID: "x", LastSyncedAt: &now, LastSyncMode: ModeFullHistory}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}
	b := &SyncState{FarmerID: "f", OrgID: "o", FieldID: "x", LastSyncMode: ModeIncremental}
	if err := db.Create(b).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (farmer_id, org_id, field_id)")
	}
	c := &SyncState{FarmerID: "f", OrgID: "o", FieldID: "y", LastSyncMode: ModeIncremental}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("different field should insert: %v", err)
	}
}

func TestForeignKeys_FieldNeedsOrg_NormalizedNeedsRaw(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	if err := db.Create(&Field{FieldID: "fld", OrgID: "missing", Name: "North"}).Error; err == nil {
		t.Fatalf("expected FK violation for field without organization")
	}

	norm := &NormalizedOperation{
		ID:            "n1",
		OperationID:   "op-missing",
		FieldID:       "fld",
		OrgID:         "org",
		OperationType: OperationOther,
		OperationDate: time.Now().UTC(),
	}
	if err := db.Create(norm).Error; err == nil {
		t.Fatalf("expected FK violation for normalized row without raw operation")
	}

	if err := db.Create(&Organization{OrgID: "org", FarmerID: "f1", Name: "Org"}).Error; err != nil {
		t.Fatalf("insert org: %v", err)
	}
	if err := db.Create(&Field{FieldID: "fld", OrgID: "org", Name: "North"}).Error; err != nil {
		t.Fatalf("insert field: %v", err)
	}
	raw := &RawOperation{OperationID: "op-missing", FieldID: "fld", OrgID: "org", RawPayload: datatypes.JSON(`{"id":"op-missing"}`)}
	if err := db.Create(raw).Error; err != nil {
		t.Fatalf("insert raw: %v", err)
	}
	if err := db.Create(norm).Error; err != nil {
		t.Fatalf("normalized row should insert once raw exists: %v", err)
	}
}

func TestNormalizedOperation_RejectsUnknownType(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	if err := db.Create(&Organization{OrgID: "o", FarmerID: "f"}).Error; err != nil {
		t.Fatalf("insert org: %v", err)
	}
	if err := db.Create(&RawOperation{OperationID: "op", FieldID: "x", OrgID: "o", RawPayload: datatypes.JSON(`{}`)}).Error; err != nil {
		t.Fatalf("insert raw: %v", err)
	}
	bad := &NormalizedOperation{ID: "n", OperationID: "op", FieldID: "x", OrgID: "o", OperationType: "SPRAYING", OperationDate: time.Now()}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown operation_type")
	}
}

func TestAuthState_InsertAndReadBack(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	now := time.Now().UTC()
	st := &AuthState{State: "abc", FarmerID: "farmer-1", ExpiresAt: now.Add(10 * time.Minute)}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	var got AuthState
	if err := db.First(&got, "state = ?", "abc").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.FarmerID != "farmer-1" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected row: %+v", got)
	}
	if err := db.Create(&AuthState{State: "abc", FarmerID: "other", ExpiresAt: now}).Error; err == nil {
		t.Fatalf("expected primary key violation on duplicate state")
	}
}
