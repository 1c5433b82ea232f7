package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/repo"
	"github.com/agricapture/fieldsync/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RawOperationsResponse carries platform payloads as received.
type RawOperationsResponse struct {
	FieldID    string            `json:"field_id"`
	Operations []json.RawMessage `json:"operations" swaggertype:"array,object"`
	Count      int               `json:"count"`
}

// NormalizedOperationsResponse is one page of stored normalized operations.
type NormalizedOperationsResponse struct {
	Operations []domain.NormalizedOperation `json:"operations"`
	Pagination Pagination                   `json:"pagination"`
}

// SyncStatesResponse lists a farmer's per-field watermarks.
type SyncStatesResponse struct {
	FarmerID string             `json:"farmer_id"`
	States   []domain.SyncState `json:"states"`
	Count    int                `json:"count"`
}

// RawOperations godoc
// @ID          rawOperations
// @Summary     Fetch raw field operations
// @Description Reads the field's operations straight from the platform, without storing them.
// @Tags        Operations
// @Produce     json
// @Param       field_id     path    string  true   "Field id"
// @Param       org_id       query   string  true   "Organization id"
// @Param       farmer_id    query   string  false  "Farmer identifier"
// @Param       X-Farmer-ID  header  string  false  "Farmer identifier"
// @Param       start_date   query   string  false  "RFC 3339 or YYYY-MM-DD"
// @Param       end_date     query   string  false  "RFC 3339 or YYYY-MM-DD"
// @Success     200  {object}  handlers.RawOperationsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /api/v1/fields/{field_id}/operations [get]
func (h *Handlers) RawOperations(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	orgID := strings.TrimSpace(c.Query("org_id"))
	if orgID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "org_id is required")
		return
	}
	start, err := parseDate(c.Query("start_date"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	end, err := parseDate(c.Query("end_date"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	fieldID := c.Param("field_id")
	recs, err := h.ops.Raw(c.Request.Context(), farmerID, orgID, fieldID, start, end)
	if err != nil {
		failErr(c, err)
		return
	}
	if recs == nil {
		recs = []json.RawMessage{}
	}
	ok(c, http.StatusOK, RawOperationsResponse{FieldID: fieldID, Operations: recs, Count: len(recs)})
}

// NormalizedOperations godoc
// @ID          normalizedOperations
// @Summary     List normalized field operations
// @Description Pages through the stored normalized operations of a field, ordered by operation date. By default only the newest version of each operation is returned.
// @Tags        Operations
// @Produce     json
// @Param       field_id   path   string   false  "Field id"
// @Param       farmer_id  query  string   false  "Restrict to the farmer's organizations"
// @Param       type       query  string   false  "Comma-separated PLANTING,HARVEST,TILLAGE,FERTILIZER,OTHER"
// @Param       from       query  string   false  "Operation date lower bound (inclusive)"
// @Param       to         query  string   false  "Operation date upper bound (exclusive)"
// @Param       latest     query  bool     false  "Newest version only"  default(true)
// @Param       page       query  int      false  "Page"                 default(1)
// @Param       page_size  query  int      false  "Page size"            default(50)
// @Success     200  {object}  handlers.NormalizedOperationsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/fields/{field_id}/operations/normalized [get]
func (h *Handlers) NormalizedOperations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.NormalizedFilter{
		FarmerID:   strings.TrimSpace(c.Query("farmer_id")),
		FieldID:    c.Param("field_id"),
		LatestOnly: true,
		Offset:     utils.PageOffset(page, pageSize),
		Limit:      pageSize,
	}
	if v := c.Query("latest"); v != "" {
		latest, err := strconv.ParseBool(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "latest must be a boolean")
			return
		}
		f.LatestOnly = latest
	}
	if v := c.Query("type"); v != "" {
		for _, part := range strings.Split(v, ",") {
			t := domain.OperationType(strings.ToUpper(strings.TrimSpace(part)))
			if !t.Valid() {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown operation type: "+part)
				return
			}
			f.Types = append(f.Types, t)
		}
	}
	var err error
	if f.From, err = parseDate(c.Query("from")); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if f.To, err = parseDate(c.Query("to")); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	ops, total, err := h.ops.NormalizedPage(c.Request.Context(), f)
	if err != nil {
		failErr(c, err)
		return
	}
	if ops == nil {
		ops = []domain.NormalizedOperation{}
	}
	ok(c, http.StatusOK, NormalizedOperationsResponse{
		Operations: ops,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ExportOperations godoc
// @ID          exportOperations
// @Summary     Export normalized operations as XLSX
// @Description Streams a workbook with the newest version of every stored operation of the farmer plus a per-type summary sheet.
// @Tags        Operations
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param       farmer_id  path  string  true  "Farmer identifier"
// @Success     200  {file}    file
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/farmers/{farmer_id}/operations/export [get]
func (h *Handlers) ExportOperations(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	// Buffered so a failed export still gets a JSON error instead of a
	// truncated attachment.
	var buf bytes.Buffer
	n, err := h.ops.Export(c.Request.Context(), farmerID, &buf)
	if err != nil {
		failErr(c, err)
		return
	}
	name := "operations_" + farmerID + "_" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+sanitizeFilename(name)+`"`)
	c.Header("X-Operation-Count", strconv.Itoa(n))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// SyncStates godoc
// @ID          syncStates
// @Summary     List sync watermarks
// @Tags        Operations
// @Produce     json
// @Param       farmer_id    query   string  false  "Farmer identifier"
// @Param       X-Farmer-ID  header  string  false  "Farmer identifier"
// @Success     200  {object}  handlers.SyncStatesResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /api/v1/sync-states [get]
func (h *Handlers) SyncStates(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	states, err := h.ops.SyncStates(c.Request.Context(), farmerID)
	if err != nil {
		failErr(c, err)
		return
	}
	if states == nil {
		states = []domain.SyncState{}
	}
	ok(c, http.StatusOK, SyncStatesResponse{FarmerID: farmerID, States: states, Count: len(states)})
}

// Stats godoc
// @ID          stats
// @Summary     Store statistics
// @Tags        Operations
// @Produce     json
// @Success     200  {object}  repo.Stats
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	st, err := h.ops.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// sanitizeFilename keeps header-safe characters only.
func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
