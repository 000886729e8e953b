package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRepository persists expenses together with their embedded approval
// chain. Save is a compare-and-swap on Version.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error

	// Get returns approval.ErrExpenseNotFound when the expense is missing or
	// belongs to another tenant
	Get(ctx context.Context, tenantID, id string) (*entity.Expense, error)

	// Save writes the expense if its stored version still equals
	// expense.Version and increments Version on success. A mismatch returns
	// approval.ErrConcurrentModification.
	Save(ctx context.Context, expense *entity.Expense) error

	// ListActionable returns submitted or pending_approval expenses. An empty
	// tenantID lists every tenant.
	ListActionable(ctx context.Context, tenantID string, limit int) ([]*entity.Expense, error)

	ListByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]*entity.Expense, error)
}

// WorkflowRepository persists workflow definitions
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	Get(ctx context.Context, tenantID, id string) (*entity.Workflow, error)
	GetByName(ctx context.Context, tenantID, name string) (*entity.Workflow, error)
	Update(ctx context.Context, wf *entity.Workflow) error

	// List returns the tenant's workflows; inactive ones only when includeInactive
	List(ctx context.Context, tenantID string, includeInactive bool) ([]*entity.Workflow, error)

	// ListActiveNonDefault returns active non-default workflows ordered by
	// (created_at, id)
	ListActiveNonDefault(ctx context.Context, tenantID string) ([]*entity.Workflow, error)

	// GetDefault returns the tenant's default workflow or nil
	GetDefault(ctx context.Context, tenantID string) (*entity.Workflow, error)

	// CreateDefaultIfAbsent inserts wf as the tenant default unless one
	// exists, then returns the stored default
	CreateDefaultIfAbsent(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error)
}

// UserRepository persists the approver directory
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	Get(ctx context.Context, id string) (*entity.User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.User, error)
}

// HistoryRepository persists the audit trail of expense transitions
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.ApprovalHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
