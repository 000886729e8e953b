package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ApproverDirectory resolves people for chain building. Lookups only return
// active users of the requested tenant.
type ApproverDirectory interface {
	// LookupUser returns approval.ErrUserNotFound when unknown
	LookupUser(ctx context.Context, tenantID, userID string) (*entity.User, error)

	// LookupActiveUsers returns the subset of ids that are active in tenant,
	// preserving the order of ids
	LookupActiveUsers(ctx context.Context, tenantID string, ids []string) ([]*entity.User, error)

	// LookupManager returns the user's active manager, or nil
	LookupManager(ctx context.Context, tenantID, userID string) (*entity.User, error)

	// LookupAdmins returns the tenant's active admins ordered by id
	LookupAdmins(ctx context.Context, tenantID string) ([]*entity.User, error)
}

// Notifier delivers approval notifications. Failures are reported to the
// caller for logging only.
type Notifier interface {
	NotifySubmitted(ctx context.Context, expense *entity.Expense, employee *entity.User) error
	NotifyApprovalRequested(ctx context.Context, expense *entity.Expense, approvers []*entity.User, escalated bool) error
	NotifyApproved(ctx context.Context, expense *entity.Expense, employee *entity.User) error
	NotifyRejected(ctx context.Context, expense *entity.Expense, employee *entity.User, reason string) error
}

// MessageSender sends a plain text message to a user of the messaging platform
type MessageSender interface {
	SendText(ctx context.Context, openID string, text string) error
}
