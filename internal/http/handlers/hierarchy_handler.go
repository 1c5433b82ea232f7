package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agricapture/fieldsync/internal/domain"
)

// OrganizationsResponse lists a farmer's organizations.
type OrganizationsResponse struct {
	Organizations []*domain.Organization `json:"organizations"`
	Count         int                    `json:"count"`
}

// FieldsResponse lists the fields of one organization.
type FieldsResponse struct {
	OrgID  string          `json:"org_id"`
	Fields []*domain.Field `json:"fields"`
	Count  int             `json:"count"`
}

// ListOrganizations godoc
// @ID          listOrganizations
// @Summary     List organizations
// @Description Fetches the farmer's organizations from the platform and stores them locally.
// @Tags        Hierarchy
// @Produce     json
// @Param       farmer_id    query   string  false  "Farmer identifier"
// @Param       X-Farmer-ID  header  string  false  "Farmer identifier"
// @Success     200  {object}  handlers.OrganizationsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /api/v1/organizations [get]
func (h *Handlers) ListOrganizations(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	orgs, err := h.hierarchy.Organizations(c.Request.Context(), farmerID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, OrganizationsResponse{Organizations: orgs, Count: len(orgs)})
}

// ListFields godoc
// @ID          listFields
// @Summary     List the fields of an organization
// @Description Fetches fields with boundaries from the platform and stores them locally.
// @Tags        Hierarchy
// @Produce     json
// @Param       org_id       path    string  true   "Organization id"
// @Param       farmer_id    query   string  false  "Farmer identifier"
// @Param       X-Farmer-ID  header  string  false  "Farmer identifier"
// @Success     200  {object}  handlers.FieldsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /api/v1/organizations/{org_id}/fields [get]
func (h *Handlers) ListFields(c *gin.Context) {
	farmerID, okF := requireFarmer(c)
	if !okF {
		return
	}
	orgID := strings.TrimSpace(c.Param("org_id"))
	fields, err := h.hierarchy.Fields(c.Request.Context(), farmerID, orgID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FieldsResponse{OrgID: orgID, Fields: fields, Count: len(fields)})
}
