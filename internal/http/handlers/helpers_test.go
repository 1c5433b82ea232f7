package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/services"
)

// ---------- fakes ----------

type fakeAuth struct {
	beginFarmer string
	states      map[string]string
	exchangeErr error
	saved       map[string]*domain.Credential
}

func (f *fakeAuth) BeginAuthorization(_ context.Context, farmerID, _ string) (string, string, error) {
	f.beginFarmer = farmerID
	return "https://auth.example/authorize?state=s1", "s1", nil
}

func (f *fakeAuth) ConsumeState(_ context.Context, state string) (string, error) {
	farmer, ok := f.states[state]
	if !ok {
		return "", services.ErrInvalidState
	}
	delete(f.states, state)
	return farmer, nil
}

func (f *fakeAuth) ExchangeCode(_ context.Context, code string) (*domain.Credential, error) {
	if code == "" {
		return nil, services.ErrMissingCode
	}
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &domain.Credential{AccessToken: "at-" + code, RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) SaveCredential(_ context.Context, userID string, cred *domain.Credential) error {
	if f.saved == nil {
		f.saved = map[string]*domain.Credential{}
	}
	f.saved[userID] = cred
	return nil
}

type fakeConnections struct {
	uri    string
	needed bool
	err    error
}

func (f fakeConnections) CheckConnectionsNeeded(context.Context, string) (string, bool, error) {
	return f.uri, f.needed, f.err
}

type fakeHierarchy struct {
	orgs      []*domain.Organization
	fields    []*domain.Field
	fieldsErr error
	gotOrg    string
}

func (f *fakeHierarchy) Organizations(context.Context, string) ([]*domain.Organization, error) {
	return f.orgs, nil
}

func (f *fakeHierarchy) Fields(_ context.Context, _ string, orgID string) ([]*domain.Field, error) {
	f.gotOrg = orgID
	return f.fields, f.fieldsErr
}

type fakeSync struct {
	fieldReq  services.FieldSyncRequest
	fieldRes  *services.FieldResult
	fieldErr  error
	sweepReq  services.SweepRequest
	sweepRes  *services.SweepReport
	sweepErr  error
	fieldRuns int
}

func (f *fakeSync) SyncField(_ context.Context, req services.FieldSyncRequest) (*services.FieldResult, error) {
	f.fieldRuns++
	f.fieldReq = req
	res := f.fieldRes
	if res == nil {
		res = &services.FieldResult{FarmerID: req.FarmerID, OrgID: req.OrgID, FieldID: req.FieldID, Mode: req.Mode, Status: services.StatusSynced}
	}
	return res, f.fieldErr
}

func (f *fakeSync) SyncFarmer(_ context.Context, req services.SweepRequest) (*services.SweepReport, error) {
	f.sweepReq = req
	res := f.sweepRes
	if res == nil {
		res = &services.SweepReport{FarmerID: req.FarmerID, Mode: req.Mode}
	}
	return res, f.sweepErr
}

type fakeSnapshot struct {
	req services.SnapshotRequest
	err error
}

func (f *fakeSnapshot) Build(_ context.Context, req services.SnapshotRequest) (*services.FarmerSnapshot, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.FarmerSnapshot{FarmerID: req.FarmerID}, nil
}

type fakeOps struct {
	raw        []json.RawMessage
	rawErr     error
	rawStart   *time.Time
	rawOrg     string
	filter     repo.NormalizedFilter
	page       []domain.NormalizedOperation
	total      int64
	exportErr  error
	states     []domain.SyncState
	statsValue *repo.Stats
}

func (f *fakeOps) Raw(_ context.Context, _, orgID, _ string, start, _ *time.Time) ([]json.RawMessage, error) {
	f.rawOrg, f.rawStart = orgID, start
	return f.raw, f.rawErr
}

func (f *fakeOps) NormalizedPage(_ context.Context, flt repo.NormalizedFilter) ([]domain.NormalizedOperation, int64, error) {
	f.filter = flt
	return f.page, f.total, nil
}

func (f *fakeOps) Export(_ context.Context, _ string, w io.Writer) (int, error) {
	if f.exportErr != nil {
		return 0, f.exportErr
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return 3, err
}

func (f *fakeOps) SyncStates(context.Context, string) ([]domain.SyncState, error) {
	return f.states, nil
}

func (f *fakeOps) Stats(context.Context) (*repo.Stats, error) {
	if f.statsValue == nil {
		return &repo.Stats{}, nil
	}
	return f.statsValue, nil
}

type fakeArchive struct {
	objects   []archive.Object
	gotPrefix string
	gotLimit  int
	payloads  map[string]map[string]any
}

func (f *fakeArchive) List(_ context.Context, prefix string, limit int) ([]archive.Object, error) {
	f.gotPrefix, f.gotLimit = prefix, limit
	return f.objects, nil
}

func (f *fakeArchive) Get(_ context.Context, key string) (map[string]any, error) {
	p, ok := f.payloads[key]
	if !ok {
		return nil, archive.ErrObjectNotFound
	}
	return p, nil
}

// ---------- engine + request helpers ----------

// newEngine registers every handler on the paths the router uses.
func newEngine(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/auth/login", h.Login)
	r.GET("/auth/callback", h.Callback)
	r.GET("/auth/connected", h.Connected)
	r.GET("/auth/success", h.Success)

	r.GET("/organizations", h.ListOrganizations)
	r.GET("/organizations/:org_id/fields", h.ListFields)
	r.GET("/fields/:field_id/operations", h.RawOperations)
	r.GET("/fields/:field_id/operations/normalized", h.NormalizedOperations)
	r.POST("/fields/:field_id/sync", h.SyncField)
	r.POST("/farmers/:farmer_id/sync", h.SyncFarmer)
	r.GET("/farmers/:farmer_id/snapshot", h.Snapshot)
	r.GET("/farmers/:farmer_id/operations/export", h.ExportOperations)
	r.GET("/sync-states", h.SyncStates)
	r.GET("/stats", h.Stats)
	r.GET("/archive", h.ListArchive)
	r.GET("/archive/objects/*key", h.GetArchive)
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	if got := decode[ErrorResponse](t, w); got.Code != code {
		t.Fatalf("code = %q, want %q", got.Code, code)
	}
}
