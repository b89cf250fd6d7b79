package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/orgcontext"
)

const HeaderOrg = "X-Org-Id"

// OrgContext resolves the active organization from the X-Org-Id header.
// Every /api route is org scoped, so a missing or malformed header is
// rejected before the handler runs.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, newValidationError("organization", "required", "X-Org-Id header is required"))
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID <= 0 {
			AbortWithError(c, newValidationError("organization", "invalid_id", "X-Org-Id is not a valid id"))
			return
		}

		c.Set("org_id", orgID.String())
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID.Int64()))
		c.Next()
	}
}
