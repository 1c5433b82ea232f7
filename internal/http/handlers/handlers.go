// Package handlers exposes the sync engine over HTTP.
//
// Handlers are transport-thin: they resolve the farmer, validate query and
// body input, call a service, and translate the outcome with failErr.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/http/middleware"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/services"
	"github.com/agricapture/fieldsync/internal/utils"
)

//
// Service contracts
//

// AuthService runs the OAuth authorization-code flow.
type AuthService interface {
	BeginAuthorization(ctx context.Context, farmerID, state string) (authURL, issuedState string, err error)
	ConsumeState(ctx context.Context, state string) (farmerID string, err error)
	ExchangeCode(ctx context.Context, code string) (*domain.Credential, error)
	SaveCredential(ctx context.Context, userID string, cred *domain.Credential) error
}

// ConnectionChecker reports whether the farmer still has to grant access
// to an organization, and where.
type ConnectionChecker interface {
	CheckConnectionsNeeded(ctx context.Context, userID string) (uri string, needed bool, err error)
}

// HierarchyService lists organizations and fields live from the platform.
type HierarchyService interface {
	Organizations(ctx context.Context, farmerID string) ([]*domain.Organization, error)
	Fields(ctx context.Context, farmerID, orgID string) ([]*domain.Field, error)
}

// SyncService runs field syncs and farmer sweeps.
type SyncService interface {
	SyncField(ctx context.Context, req services.FieldSyncRequest) (*services.FieldResult, error)
	SyncFarmer(ctx context.Context, req services.SweepRequest) (*services.SweepReport, error)
}

// SnapshotService builds farmer snapshots.
type SnapshotService interface {
	Build(ctx context.Context, req services.SnapshotRequest) (*services.FarmerSnapshot, error)
}

// OperationService reads raw and normalized operations and sync metadata.
type OperationService interface {
	Raw(ctx context.Context, farmerID, orgID, fieldID string, start, end *time.Time) ([]json.RawMessage, error)
	NormalizedPage(ctx context.Context, f repo.NormalizedFilter) ([]domain.NormalizedOperation, int64, error)
	Export(ctx context.Context, farmerID string, w io.Writer) (int, error)
	SyncStates(ctx context.Context, farmerID string) ([]domain.SyncState, error)
	Stats(ctx context.Context) (*repo.Stats, error)
}

// ArchiveReader browses archived raw payloads.
type ArchiveReader interface {
	List(ctx context.Context, prefix string, limit int) ([]archive.Object, error)
	Get(ctx context.Context, key string) (map[string]any, error)
}

//
// Handler wiring
//

// Deps are the services behind the handlers. Connections and Archive are
// optional: without Connections the callback goes straight to the success
// page, without Archive the archive routes answer 503.
type Deps struct {
	Auth        AuthService
	Connections ConnectionChecker
	Hierarchy   HierarchyService
	Sync        SyncService
	Snapshot    SnapshotService
	Operations  OperationService
	Archive     ArchiveReader

	// BaseURL is the public URL of this service, used to build redirects.
	BaseURL string
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	auth        AuthService
	connections ConnectionChecker
	hierarchy   HierarchyService
	sync        SyncService
	snapshot    SnapshotService
	ops         OperationService
	archive     ArchiveReader
	baseURL     string
}

// New binds the handlers to their services.
func New(d Deps) *Handlers {
	return &Handlers{
		auth:        d.Auth,
		connections: d.Connections,
		hierarchy:   d.Hierarchy,
		sync:        d.Sync,
		snapshot:    d.Snapshot,
		ops:         d.Operations,
		archive:     d.Archive,
		baseURL:     strings.TrimRight(d.BaseURL, "/"),
	}
}

//
// DTOs
//

// Pagination carries paging metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.PageCount(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

//
// Helpers
//

var errFarmerRequired = errors.New("farmer_id is required (path, query or " + middleware.HeaderFarmerID + " header)")

// requireFarmer resolves the farmer or answers 400.
func requireFarmer(c *gin.Context) (string, bool) {
	id := middleware.FarmerID(c)
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, errFarmerRequired.Error())
		return "", false
	}
	return id, true
}

// clampPagination bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 50
		maxPageSize     = 500
	)
	page = max(utils.AtoiDefault(c.Query("page"), 1), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC
// midnight). An empty value yields nil.
func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, errors.New("dates must be RFC 3339 or YYYY-MM-DD: " + v)
	}
	return &t, nil
}

// parseMode defaults an empty mode to full_history.
func parseMode(v string) (domain.SyncMode, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return domain.ModeFullHistory, nil
	}
	m := domain.SyncMode(v)
	if !m.Valid() {
		return "", services.ErrInvalidMode
	}
	return m, nil
}

// bindOptional binds a JSON or form body when there is one and the query
// string otherwise, so POST endpoints accept either style.
func bindOptional(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return c.ShouldBindQuery(dst)
	}
	return c.ShouldBind(dst)
}
