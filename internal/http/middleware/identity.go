package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderFarmerID carries the farmer identity for routes that do not have it
// in the path.
const HeaderFarmerID = "X-Farmer-ID"

// FarmerID resolves the farmer a request acts for: the :farmer_id path
// parameter first, then the farmer_id query parameter, then X-Farmer-ID.
// It returns "" when none is present.
func FarmerID(c *gin.Context) string {
	if v := strings.TrimSpace(c.Param("farmer_id")); v != "" {
		return v
	}
	if c.Request == nil {
		return ""
	}
	if v := strings.TrimSpace(c.Query("farmer_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(HeaderFarmerID))
}
