package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/repo"
)

// newTestDB opens a private in-memory database with the full schema. A
// single connection keeps concurrent test goroutines from tripping over
// shared-cache table locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type opsCall struct {
	FieldID    string
	Start, End time.Time
}

// fakeRemote serves a fixed organization/field/operation tree.
type fakeRemote struct {
	mu sync.Mutex

	orgs      []jdoc.Organization
	orgsErr   error
	fields    map[string][]jdoc.Field
	fieldsErr map[string]error
	ops       map[string][]json.RawMessage
	opsErr    map[string]error
	sink      jdoc.OrganizationSink

	// fieldsDelay stretches ListFields so tests can observe overlap.
	fieldsDelay time.Duration
	inflight    int
	maxInflight int

	orgCalls int
	opsCalls []opsCall
}

func (f *fakeRemote) ListOrganizations(ctx context.Context, userID string) ([]jdoc.Organization, error) {
	f.mu.Lock()
	f.orgCalls++
	f.mu.Unlock()
	if f.orgsErr != nil {
		return nil, f.orgsErr
	}
	if f.sink != nil {
		for _, o := range f.orgs {
			if err := f.sink.SaveOrganization(ctx, userID, o); err != nil {
				return nil, err
			}
		}
	}
	return f.orgs, nil
}

func (f *fakeRemote) ListFields(_ context.Context, _ string, orgID string, _ bool) ([]jdoc.Field, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()
	if f.fieldsDelay > 0 {
		time.Sleep(f.fieldsDelay)
	}
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if err := f.fieldsErr[orgID]; err != nil {
		return nil, err
	}
	return f.fields[orgID], nil
}

func (f *fakeRemote) ListFieldOperations(_ context.Context, _ string, _ string, fieldID string, start, end *time.Time) ([]json.RawMessage, error) {
	f.mu.Lock()
	c := opsCall{FieldID: fieldID}
	if start != nil {
		c.Start = *start
	}
	if end != nil {
		c.End = *end
	}
	f.opsCalls = append(f.opsCalls, c)
	f.mu.Unlock()

	if err := f.opsErr[fieldID]; err != nil {
		return nil, err
	}
	return f.ops[fieldID], nil
}

func (f *fakeRemote) callsFor(fieldID string) []opsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []opsCall
	for _, c := range f.opsCalls {
		if c.FieldID == fieldID {
			out = append(out, c)
		}
	}
	return out
}

func seedingOp(id, date string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"fieldOperationType":"seeding","startDate":%q,"cropName":"CORN_WET",`+
		`"varieties":[{"name":"DKC63-42","productType":"SEED"}],"area":{"valueAsDouble":12.5,"unit":"ha"}}`, id, date))
}

func applicationOp(id, date string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"fieldOperationType":"application","startDate":%q,`+
		`"resources":[{"product":{"name":"UAN 32","productType":"FERTILIZER"},"rate":{"value":150,"unit":"l1ha-1"}}]}`, id, date))
}

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) TokenStatus(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	docs []map[string]any
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, dataType string, payload map[string]any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	k := fmt.Sprintf("raw/%s/%d.json", dataType, len(a.keys))
	a.keys = append(a.keys, k)
	a.docs = append(a.docs, payload)
	return k, nil
}

func clockAt(t time.Time) func() time.Time { return func() time.Time { return t } }
