package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/approval"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"

	ctxTenantID = "tenant_id"
	ctxUserID   = "user_id"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// statusFor maps an engine error kind onto an HTTP status
func statusFor(kind approval.Kind) int {
	switch kind {
	case approval.KindNotFound:
		return http.StatusNotFound
	case approval.KindValidation:
		return http.StatusBadRequest
	case approval.KindNotAuthorized, approval.KindNotEligibleApprover:
		return http.StatusForbidden
	case approval.KindAlreadyResolved, approval.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	kind := approval.KindOf(err)
	status := statusFor(kind)

	resp := Response{Success: false, Kind: string(kind), Error: err.Error()}
	var verr *approval.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "path", c.Request.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Kind:    string(approval.KindValidation),
		Error:   msg,
	})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// identityMiddleware reads the caller's tenant and user from request
// headers. Authentication happens upstream of this service.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(headerTenantID)
		userID := c.GetHeader(headerUserID)
		if tenantID == "" || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   headerTenantID + " and " + headerUserID + " headers are required",
			})
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// adminOnly rejects callers that are not active admins of their tenant
func (h *Handlers) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.services.Directory.LookupUser(c.Request.Context(), tenant(c), actor(c))
		if errors.Is(err, approval.ErrUserNotFound) || (err == nil && !user.IsAdmin()) {
			h.fail(c, "authorize", approval.E("authorize", approval.ErrNotAuthorized, "%s is not an admin", actor(c)))
			return
		}
		if err != nil {
			h.fail(c, "authorize", err)
			return
		}
		c.Next()
	}
}

func tenant(c *gin.Context) string { return c.GetString(ctxTenantID) }
func actor(c *gin.Context) string  { return c.GetString(ctxUserID) }
