package http

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const maxSeedSize = 1 << 20

// TestWorkflowRequest is the body of a workflow dry run. An empty
// WorkflowID runs workflow selection.
type TestWorkflowRequest struct {
	WorkflowID string                `json:"workflow_id"`
	Sample     service.SampleExpense `json:"sample"`
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	list, err := h.services.Workflow.List(c.Request.Context(), tenant(c), includeInactive)
	if err != nil {
		h.fail(c, "list workflows", err)
		return
	}
	ok(c, list)
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.services.Workflow.Get(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get workflow", err)
		return
	}
	ok(c, wf)
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var wf entity.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	wf.TenantID = tenant(c)

	created, err := h.services.Workflow.Create(c.Request.Context(), &wf)
	if err != nil {
		h.fail(c, "create workflow", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// UpdateWorkflow handles PUT /api/v1/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var wf entity.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	wf.ID = c.Param("id")
	wf.TenantID = tenant(c)

	updated, err := h.services.Workflow.Update(c.Request.Context(), &wf)
	if err != nil {
		h.fail(c, "update workflow", err)
		return
	}
	ok(c, updated)
}

// DeleteWorkflow handles DELETE /api/v1/workflows/:id
func (h *Handlers) DeleteWorkflow(c *gin.Context) {
	if err := h.services.Workflow.Delete(c.Request.Context(), tenant(c), c.Param("id")); err != nil {
		h.fail(c, "delete workflow", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestWorkflow handles POST /api/v1/workflows/test
func (h *Handlers) TestWorkflow(c *gin.Context) {
	var req TestWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	preview, err := h.services.Workflow.TestWorkflow(c.Request.Context(), tenant(c), req.WorkflowID, req.Sample)
	if err != nil {
		h.fail(c, "test workflow", err)
		return
	}
	ok(c, preview)
}

// ImportWorkflows handles POST /api/v1/workflows/import. The body is a YAML
// seed document, which must belong to the caller's tenant.
func (h *Handlers) ImportWorkflows(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSeedSize+1))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}
	if len(body) > maxSeedSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "seed document too large"})
		return
	}

	var head struct {
		TenantID string `yaml:"tenant_id"`
	}
	if err := yaml.Unmarshal(body, &head); err != nil {
		badRequest(c, "invalid YAML: "+err.Error())
		return
	}
	if head.TenantID != tenant(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "seed document belongs to another tenant"})
		return
	}

	result, err := h.services.Workflow.ImportYAML(c.Request.Context(), bytes.NewReader(body))
	if err != nil {
		h.fail(c, "import workflows", err)
		return
	}
	ok(c, result)
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.services.Directory.ListUsers(c.Request.Context(), tenant(c))
	if err != nil {
		h.fail(c, "list users", err)
		return
	}
	ok(c, users)
}

// UpsertUser handles PUT /api/v1/users/:id
func (h *Handlers) UpsertUser(c *gin.Context) {
	var u entity.User
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	u.ID = c.Param("id")
	u.TenantID = tenant(c)

	if err := h.services.Directory.UpsertUser(c.Request.Context(), &u); err != nil {
		h.fail(c, "upsert user", err)
		return
	}
	ok(c, &u)
}
