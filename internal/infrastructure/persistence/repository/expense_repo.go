package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const expenseColumns = `
	id, tenant_id, employee_id, amount, currency, category, description,
	status, workflow_id, approval_chain, total_approved_amount, rejection_reason,
	submitted_at, approved_at, paid_at, version, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense at version 1
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	chain, err := encodeJSON("approval chain", nonNil(expense.ApprovalChain))
	if err != nil {
		return err
	}

	query := `INSERT INTO expenses (` + expenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	expense.Version = 1
	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		expense.ID,
		expense.TenantID,
		expense.EmployeeID,
		expense.Amount,
		expense.Currency,
		expense.Category,
		expense.Description,
		expense.Status,
		expense.WorkflowID,
		chain,
		expense.TotalApprovedAmount,
		expense.RejectionReason,
		nullTime(expense.SubmittedAt),
		nullTime(expense.ApprovedAt),
		nullTime(expense.PaidAt),
		expense.Version,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// Get retrieves an expense of the tenant by ID
func (r *ExpenseRepository) Get(ctx context.Context, tenantID, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND tenant_id = ?`

	expense, err := scanExpense(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.E("get expense", approval.ErrExpenseNotFound, "%s", id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("expense_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// Save writes the expense when the stored version still matches
func (r *ExpenseRepository) Save(ctx context.Context, expense *entity.Expense) error {
	chain, err := encodeJSON("approval chain", nonNil(expense.ApprovalChain))
	if err != nil {
		return err
	}

	query := `
		UPDATE expenses SET
			amount = ?, currency = ?, category = ?, description = ?, status = ?,
			workflow_id = ?, approval_chain = ?, total_approved_amount = ?,
			rejection_reason = ?, submitted_at = ?, approved_at = ?, paid_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		expense.Amount,
		expense.Currency,
		expense.Category,
		expense.Description,
		expense.Status,
		expense.WorkflowID,
		chain,
		expense.TotalApprovedAmount,
		expense.RejectionReason,
		nullTime(expense.SubmittedAt),
		nullTime(expense.ApprovedAt),
		nullTime(expense.PaidAt),
		expense.UpdatedAt,
		expense.ID,
		expense.TenantID,
		expense.Version,
	)
	if err != nil {
		r.logger.Error("Failed to save expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to save expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return approval.E("save expense", approval.ErrConcurrentModification,
			"%s changed since version %d", expense.ID, expense.Version)
	}

	expense.Version++
	return nil
}

// ListActionable returns submitted and pending_approval expenses, oldest first
func (r *ExpenseRepository) ListActionable(ctx context.Context, tenantID string, limit int) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses
		WHERE status IN (?, ?) AND (? = '' OR tenant_id = ?)
		ORDER BY created_at ASC, id ASC`
	args := []interface{}{entity.ExpenseStatusSubmitted, entity.ExpenseStatusPendingApproval, tenantID, tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.list(ctx, query, args...)
}

// ListByEmployee returns an employee's expenses, newest first
func (r *ExpenseRepository) ListByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]*entity.Expense, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses
		WHERE tenant_id = ? AND employee_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, tenantID, employeeID, limit, offset)
}

func (r *ExpenseRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*entity.Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func scanExpense(s scanner) (*entity.Expense, error) {
	var (
		e                               entity.Expense
		chain                           string
		submittedAt, approvedAt, paidAt sql.NullTime
	)
	err := s.Scan(
		&e.ID,
		&e.TenantID,
		&e.EmployeeID,
		&e.Amount,
		&e.Currency,
		&e.Category,
		&e.Description,
		&e.Status,
		&e.WorkflowID,
		&chain,
		&e.TotalApprovedAmount,
		&e.RejectionReason,
		&submittedAt,
		&approvedAt,
		&paidAt,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON("approval chain", chain, &e.ApprovalChain); err != nil {
		return nil, err
	}
	if e.ApprovalChain == nil {
		e.ApprovalChain = []entity.ChainEntry{}
	}
	e.SubmittedAt = timePtr(submittedAt)
	e.ApprovedAt = timePtr(approvedAt)
	e.PaidAt = timePtr(paidAt)
	return &e, nil
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
