// Sync HTTP handlers.
//
//   - POST /fields/{field_id}/sync            (one field)
//   - POST /farmers/{farmer_id}/sync          (sweep of every organization)
//   - GET  /farmers/{farmer_id}/snapshot      (organization → farm → field tree)
//
// Parameters may be sent as a JSON body or as query parameters.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/services"
)

// SyncFieldRequest configures a single field sync.
type SyncFieldRequest struct {
	// OrgID owns the field.
	OrgID string `json:"org_id" form:"org_id" example:"428004"`
	// Mode is full_history (default) or incremental.
	Mode string `json:"mode" form:"mode" example:"incremental"`
	// LookbackYears bounds a full_history window; 0 uses the server default.
	LookbackYears int `json:"lookback_years" form:"lookback_years" example:"5"`
	// EndDate closes the window; defaults to now.
	EndDate string `json:"end_date" form:"end_date" example:"2025-06-01"`
}

// SyncFarmerRequest configures a farmer sweep.
type SyncFarmerRequest struct {
	Mode          string `json:"mode" form:"mode" example:"full_history"`
	LookbackYears int    `json:"lookback_years" form:"lookback_years"`
	EndDate       string `json:"end_date" form:"end_date"`
	// OrgIDs restricts the sweep; empty means every organization.
	OrgIDs []string `json:"org_ids" form:"org_id"`
}

// ColdStartResponse is returned with 202 when an incremental sync found no
// prior state for the field. Nothing was fetched; the client has to run the
// field in full_history mode first.
type ColdStartResponse struct {
	*services.FieldResult
	Warning string `json:"warning"`
}

// parseWindow validates the shared mode / lookback / end_date parameters.
func parseWindow(c *gin.Context, mode string, lookback int, end string) (services.FieldSyncRequest, bool) {
	var out services.FieldSyncRequest
	m, err := parseMode(mode)
	if err != nil {
		failErr(c, err)
		return out, false
	}
	if lookback < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lookback_years must be >= 0")
		return out, false
	}
	endDate, err := parseDate(end)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return out, false
	}
	out.Mode, out.LookbackYears, out.EndDate = m, lookback, endDate
	return out, true
}

// SyncField godoc
// @ID          syncField
// @Summary     Sync one field
// @Description Fetches the field's operations for the resolved window, stores raw and normalized rows and advances the field's watermark. An incremental request for a field that was never synced answers 202 and does nothing.
// @Tags        Sync
// @Accept      json
// @Produce     json
// @Param       field_id     path    string                     true   "Field id"
// @Param       farmer_id    query   string                     false  "Farmer identifier"
// @Param       X-Farmer-ID  header  string                     false  "Farmer identifier"
// @Param       body         body    handlers.SyncFieldRequest  false  "Sync parameters"
// @Success     200  {object}  services.FieldResult
// @Success     202  {object}  handlers.ColdStartResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Sync already running"
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /api/v1/fields/{field_id}/sync [post]
func (h *Handlers) SyncField(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	var body SyncFieldRequest
	if err := bindOptional(c, &body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if body.OrgID == "" {
		body.OrgID = c.Query("org_id")
	}
	body.OrgID = strings.TrimSpace(body.OrgID)
	if body.OrgID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "org_id is required")
		return
	}
	req, okW := parseWindow(c, body.Mode, body.LookbackYears, body.EndDate)
	if !okW {
		return
	}
	req.FarmerID, req.OrgID, req.FieldID = farmerID, body.OrgID, c.Param("field_id")

	res, err := h.sync.SyncField(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Status == services.StatusColdStart {
		ok(c, http.StatusAccepted, ColdStartResponse{
			FieldResult: res,
			Warning:     "field was never synced; run it with mode=" + string(domain.ModeFullHistory) + " first",
		})
		return
	}
	ok(c, http.StatusOK, res)
}

// SyncFarmer godoc
// @ID          syncFarmer
// @Summary     Sweep every field of a farmer
// @Description Syncs every field of every organization (or of the listed ones). Field failures are reported per field; an authorization failure aborts the sweep.
// @Tags        Sync
// @Accept      json
// @Produce     json
// @Param       farmer_id  path  string                      true   "Farmer identifier"
// @Param       body       body  handlers.SyncFarmerRequest  false  "Sweep parameters"
// @Success     200  {object}  services.SweepReport
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Sync already running"
// @Router      /api/v1/farmers/{farmer_id}/sync [post]
func (h *Handlers) SyncFarmer(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	var body SyncFarmerRequest
	if err := bindOptional(c, &body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	win, okW := parseWindow(c, body.Mode, body.LookbackYears, body.EndDate)
	if !okW {
		return
	}
	var orgIDs []string
	for _, id := range body.OrgIDs {
		if id = strings.TrimSpace(id); id != "" {
			orgIDs = append(orgIDs, id)
		}
	}

	report, err := h.sync.SyncFarmer(c.Request.Context(), services.SweepRequest{
		FarmerID:      farmerID,
		OrgIDs:        orgIDs,
		Mode:          win.Mode,
		LookbackYears: win.LookbackYears,
		EndDate:       win.EndDate,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// Snapshot godoc
// @ID          farmerSnapshot
// @Summary     Farmer snapshot
// @Description Returns the organization → farm → field tree with boundaries and the newest version of every operation. With refresh (default) a sweep runs first.
// @Tags        Sync
// @Produce     json
// @Param       farmer_id       path   string  true   "Farmer identifier"
// @Param       refresh         query  bool    false  "Sync before reading"  default(true)
// @Param       mode            query  string  false  "Sweep mode"           default(full_history)
// @Param       lookback_years  query  int     false  "Sweep lookback"
// @Success     200  {object}  services.FarmerSnapshot
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No organization stored"
// @Router      /api/v1/farmers/{farmer_id}/snapshot [get]
func (h *Handlers) Snapshot(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	refresh := true
	if v := c.Query("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refresh must be a boolean")
			return
		}
		refresh = b
	}
	lookback := 0
	if v := c.Query("lookback_years"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lookback_years must be an integer")
			return
		}
		lookback = n
	}
	win, okW := parseWindow(c, c.Query("mode"), lookback, "")
	if !okW {
		return
	}

	snap, err := h.snapshot.Build(c.Request.Context(), services.SnapshotRequest{
		FarmerID:      farmerID,
		Mode:          win.Mode,
		LookbackYears: win.LookbackYears,
		Refresh:       refresh,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}
