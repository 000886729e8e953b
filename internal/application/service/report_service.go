package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	expenseSheet = "Expenses"
	chainSheet   = "Approval chain"

	defaultReportLimit = 1000
)

var (
	expenseHeader = []string{
		"Expense ID", "Employee", "Amount", "Currency", "Category", "Status",
		"Workflow", "Approved amount", "Rejection reason", "Submitted at", "Approved at", "Paid at",
	}
	chainHeader = []string{
		"Expense ID", "Entry ID", "Level", "Step", "Approver", "Status",
		"Required", "Manager", "Escalation", "Auto closed", "Rule", "Comments", "Action date",
	}
)

// ReportFilter selects the expenses written to an approval report
type ReportFilter struct {
	TenantID string
	// EmployeeID restricts the report to one employee; empty means the
	// tenant's actionable expenses
	EmployeeID string
	Limit      int
}

// ReportService exports expenses and their approval chains as XLSX workbooks
type ReportService interface {
	// Build renders the workbook in memory
	Build(ctx context.Context, filter ReportFilter) ([]byte, error)

	// Export renders the workbook and stores it, returning the storage path
	Export(ctx context.Context, filter ReportFilter) (string, error)

	// Open reads back a workbook the tenant exported earlier
	Open(ctx context.Context, tenantID, name string) ([]byte, error)

	// Remove deletes a workbook the tenant exported earlier
	Remove(ctx context.Context, tenantID, name string) error

	// Location returns the on-disk location of a storage path
	Location(p string) string
}

type reportServiceImpl struct {
	expenseRepo port.ExpenseRepository
	storage     port.FileStorage
	logger      Logger
	now         func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(expenseRepo port.ExpenseRepository, storage port.FileStorage, logger Logger) ReportService {
	return &reportServiceImpl{
		expenseRepo: expenseRepo,
		storage:     storage,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *reportServiceImpl) Build(ctx context.Context, filter ReportFilter) ([]byte, error) {
	if filter.TenantID == "" {
		return nil, &approval.ValidationError{Field: "tenant_id", Message: "tenant is required"}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultReportLimit
	}

	var (
		expenses []*entity.Expense
		err      error
	)
	if filter.EmployeeID != "" {
		expenses, err = s.expenseRepo.ListByEmployee(ctx, filter.TenantID, filter.EmployeeID, limit, 0)
	} else {
		expenses, err = s.expenseRepo.ListActionable(ctx, filter.TenantID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"
	if err := f.SetSheetName("Sheet1", expenseSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(chainSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeRow(f, expenseSheet, 1, toCells(expenseHeader)); err != nil {
		return nil, err
	}
	if err := writeRow(f, chainSheet, 1, toCells(chainHeader)); err != nil {
		return nil, err
	}

	chainRow := 2
	for i, exp := range expenses {
		if err := writeRow(f, expenseSheet, i+2, expenseCells(exp)); err != nil {
			return nil, err
		}
		for j := range exp.ApprovalChain {
			if err := writeRow(f, chainSheet, chainRow, entryCells(exp.ID, &exp.ApprovalChain[j])); err != nil {
				return nil, err
			}
			chainRow++
		}
	}

	if err := f.SetPanes(expenseSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *reportServiceImpl) Export(ctx context.Context, filter ReportFilter) (string, error) {
	content, err := s.Build(ctx, filter)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("approvals-%s.xlsx", s.now().UTC().Format("20060102-150405"))
	if filter.EmployeeID != "" {
		name = fmt.Sprintf("approvals-%s-%s.xlsx", filter.EmployeeID, s.now().UTC().Format("20060102-150405"))
	}
	p := reportPath(filter.TenantID, name)

	if err := s.storage.Save(ctx, p, content); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Info("Approval report exported", "tenant_id", filter.TenantID, "path", p, "bytes", len(content))
	return p, nil
}

func (s *reportServiceImpl) Open(ctx context.Context, tenantID, name string) ([]byte, error) {
	p, err := s.stored(ctx, "open report", tenantID, name)
	if err != nil {
		return nil, err
	}

	content, err := s.storage.Read(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return content, nil
}

func (s *reportServiceImpl) Remove(ctx context.Context, tenantID, name string) error {
	p, err := s.stored(ctx, "remove report", tenantID, name)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, p); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.logger.Info("Approval report removed", "tenant_id", tenantID, "path", p)
	return nil
}

func (s *reportServiceImpl) Location(p string) string {
	return s.storage.GetFullPath(p)
}

// stored resolves name to the tenant's report path and checks it exists
func (s *reportServiceImpl) stored(ctx context.Context, op, tenantID, name string) (string, error) {
	if tenantID == "" {
		return "", &approval.ValidationError{Field: "tenant_id", Message: "tenant is required"}
	}
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".xlsx") {
		return "", &approval.ValidationError{Field: "name", Message: "must be the file name of an exported report"}
	}

	p := reportPath(tenantID, name)
	if !s.storage.Exists(ctx, p) {
		return "", approval.E(op, approval.ErrReportNotFound, "%s", name)
	}
	return p, nil
}

func reportPath(tenantID, name string) string {
	return path.Join("reports", tenantID, name)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func expenseCells(exp *entity.Expense) []interface{} {
	return []interface{}{
		exp.ID,
		exp.EmployeeID,
		exp.Amount.StringFixed(2),
		exp.Currency,
		exp.Category,
		exp.Status,
		exp.WorkflowID,
		exp.TotalApprovedAmount.StringFixed(2),
		exp.RejectionReason,
		formatTime(exp.SubmittedAt),
		formatTime(exp.ApprovedAt),
		formatTime(exp.PaidAt),
	}
}

func entryCells(expenseID string, e *entity.ChainEntry) []interface{} {
	return []interface{}{
		expenseID,
		e.ID,
		e.Level,
		e.StepName,
		e.Approver,
		e.Status,
		e.IsRequired,
		e.IsManagerApprover,
		e.IsEscalation,
		e.AutoClosed,
		e.Rule,
		e.Comments,
		formatTime(e.ActionDate),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
