package http

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateExpenseRequest is the body of POST /expenses. EmployeeID defaults
// to the caller.
type CreateExpenseRequest struct {
	EmployeeID  string          `json:"employee_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// SubmitRequest optionally pins the workflow used for the chain
type SubmitRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// DecisionRequest is the body of approve and reject
type DecisionRequest struct {
	EntryID  string `json:"entry_id"`
	Reason   string `json:"reason"`
	Comments string `json:"comments"`
}

// OverrideRequest is the body of an admin override
type OverrideRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approved rejected"`
	Comments string `json:"comments"`
}

// ListQuery holds paging query parameters
type ListQuery struct {
	EmployeeID string `form:"employee_id"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	})
}

// CreateExpense handles POST /api/v1/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = actor(c)
	}

	exp, err := h.services.Approval.CreateExpense(c.Request.Context(), service.CreateExpenseRequest{
		TenantID:    tenant(c),
		EmployeeID:  req.EmployeeID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, "create expense", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: exp})
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if q.EmployeeID == "" {
		q.EmployeeID = actor(c)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	list, err := h.services.Approval.ListExpenses(c.Request.Context(), tenant(c), q.EmployeeID, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, "list expenses", err)
		return
	}
	ok(c, list)
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	exp, err := h.services.Approval.GetExpense(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get expense", err)
		return
	}
	ok(c, exp)
}

// GetHistory handles GET /api/v1/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	records, err := h.services.Approval.History(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		h.fail(c, "expense history", err)
		return
	}
	ok(c, records)
}

// SubmitExpense handles POST /api/v1/expenses/:id/submit
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	exp, err := h.services.Approval.Submit(c.Request.Context(), tenant(c), c.Param("id"), actor(c), req.WorkflowID)
	if err != nil {
		h.fail(c, "submit expense", err)
		return
	}
	ok(c, exp)
}

// ApproveExpense handles POST /api/v1/expenses/:id/approve
func (h *Handlers) ApproveExpense(c *gin.Context) {
	var req DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	exp, err := h.services.Approval.Approve(c.Request.Context(), tenant(c), c.Param("id"), actor(c), req.EntryID, req.Comments)
	if err != nil {
		h.fail(c, "approve expense", err)
		return
	}
	ok(c, exp)
}

// RejectExpense handles POST /api/v1/expenses/:id/reject
func (h *Handlers) RejectExpense(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	exp, err := h.services.Approval.Reject(c.Request.Context(), tenant(c), c.Param("id"), actor(c), req.EntryID, req.Reason, req.Comments)
	if err != nil {
		h.fail(c, "reject expense", err)
		return
	}
	ok(c, exp)
}

// OverrideExpense handles POST /api/v1/expenses/:id/override
func (h *Handlers) OverrideExpense(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	exp, err := h.services.Approval.Override(c.Request.Context(), tenant(c), c.Param("id"), actor(c), req.Decision, req.Comments)
	if err != nil {
		h.fail(c, "override expense", err)
		return
	}
	ok(c, exp)
}

// MarkPaid handles POST /api/v1/expenses/:id/pay
func (h *Handlers) MarkPaid(c *gin.Context) {
	exp, err := h.services.Approval.MarkPaid(c.Request.Context(), tenant(c), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, "mark paid", err)
		return
	}
	ok(c, exp)
}

// ListPending handles GET /api/v1/approvals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	approverID := c.DefaultQuery("approver_id", actor(c))

	list, err := h.services.Approval.ListPendingForApprover(c.Request.Context(), tenant(c), approverID)
	if err != nil {
		h.fail(c, "list pending", err)
		return
	}
	ok(c, list)
}

// RunEscalation handles POST /api/v1/escalations/run
func (h *Handlers) RunEscalation(c *gin.Context) {
	batchSize, err := strconv.Atoi(c.DefaultQuery("batch_size", "0"))
	if err != nil || batchSize < 0 {
		badRequest(c, "batch_size must be a non-negative integer")
		return
	}

	summary, err := h.services.Escalation.CheckAll(c.Request.Context(), batchSize)
	if err != nil {
		h.fail(c, "run escalation", err)
		return
	}
	ok(c, summary)
}

// DownloadReport handles GET /api/v1/reports/approvals and streams the
// workbook back
func (h *Handlers) DownloadReport(c *gin.Context) {
	filter, valid := reportFilter(c)
	if !valid {
		return
	}

	content, err := h.services.Report.Build(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "build report", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="approvals.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, content)
}

// ExportReport handles POST /api/v1/reports/approvals and stores the
// workbook server-side
func (h *Handlers) ExportReport(c *gin.Context) {
	filter, valid := reportFilter(c)
	if !valid {
		return
	}

	p, err := h.services.Report.Export(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "export report", err)
		return
	}
	ok(c, gin.H{"path": p, "name": path.Base(p)})
}

// GetStoredReport handles GET /api/v1/reports/approvals/:name and streams a
// workbook exported earlier
func (h *Handlers) GetStoredReport(c *gin.Context) {
	name := c.Param("name")
	content, err := h.services.Report.Open(c.Request.Context(), tenant(c), name)
	if err != nil {
		h.fail(c, "open report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, content)
}

// DeleteStoredReport handles DELETE /api/v1/reports/approvals/:name
func (h *Handlers) DeleteStoredReport(c *gin.Context) {
	if err := h.services.Report.Remove(c.Request.Context(), tenant(c), c.Param("name")); err != nil {
		h.fail(c, "remove report", err)
		return
	}
	ok(c, nil)
}

func reportFilter(c *gin.Context) (service.ReportFilter, bool) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Limit < 0 {
		badRequest(c, "invalid query parameters")
		return service.ReportFilter{}, false
	}
	return service.ReportFilter{TenantID: tenant(c), EmployeeID: q.EmployeeID, Limit: q.Limit}, true
}

// bindOptionalJSON binds the body when one was sent
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
