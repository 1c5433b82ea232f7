package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/utils"
)

const maxArchiveListLimit = 1000

// ArchiveListResponse lists archived payload objects, newest keys last.
type ArchiveListResponse struct {
	Prefix  string           `json:"prefix,omitempty"`
	Objects []archive.Object `json:"objects"`
	Count   int              `json:"count"`
}

// ArchiveObjectResponse is one archived payload.
type ArchiveObjectResponse struct {
	Key     string         `json:"key"`
	Payload map[string]any `json:"payload"`
}

func (h *Handlers) archiveEnabled(c *gin.Context) bool {
	if h.archive == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "raw archive is not configured")
		return false
	}
	return true
}

// ListArchive godoc
// @ID          listArchive
// @Summary     List archived raw payloads
// @Tags        Archive
// @Produce     json
// @Param       prefix  query  string  false  "Key prefix, e.g. raw/operations/2025/03"
// @Param       limit   query  int     false  "Maximum objects"  default(20)
// @Success     200  {object}  handlers.ArchiveListResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Archive disabled"
// @Router      /api/v1/archive [get]
func (h *Handlers) ListArchive(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), archive.DefaultListLimit)
	if limit < 1 {
		limit = archive.DefaultListLimit
	}
	limit = min(limit, maxArchiveListLimit)
	prefix := strings.TrimSpace(c.Query("prefix"))

	objs, err := h.archive.List(c.Request.Context(), prefix, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	if objs == nil {
		objs = []archive.Object{}
	}
	ok(c, http.StatusOK, ArchiveListResponse{Prefix: prefix, Objects: objs, Count: len(objs)})
}

// GetArchive godoc
// @ID          getArchive
// @Summary     Read one archived payload
// @Tags        Archive
// @Produce     json
// @Param       key  path  string  true  "Object key"
// @Success     200  {object}  handlers.ArchiveObjectResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Archive disabled"
// @Router      /api/v1/archive/objects/{key} [get]
func (h *Handlers) GetArchive(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		key = strings.TrimSpace(c.Query("key"))
	}
	if key == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "key is required")
		return
	}
	payload, err := h.archive.Get(c.Request.Context(), key)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ArchiveObjectResponse{Key: key, Payload: payload})
}
