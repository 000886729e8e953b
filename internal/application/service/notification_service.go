package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService turns domain events into notifications
type NotificationService interface {
	// Register subscribes the notification and audit-log handlers
	Register(d dispatcher.Dispatcher)

	HandleSubmitted(ctx context.Context, evt *event.Event) error
	HandleApprovalRequested(ctx context.Context, evt *event.Event) error
	HandleApproved(ctx context.Context, evt *event.Event) error
	HandleRejected(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	expenseRepo port.ExpenseRepository
	directory   port.ApproverDirectory
	notifier    port.Notifier
	logger      Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	expenseRepo port.ExpenseRepository,
	directory port.ApproverDirectory,
	notifier port.Notifier,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		expenseRepo: expenseRepo,
		directory:   directory,
		notifier:    notifier,
		logger:      logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeExpenseSubmitted, "notify.submitted", s.HandleSubmitted)
	d.Subscribe(event.TypeApprovalRequested, "notify.approval_requested", s.HandleApprovalRequested)
	d.Subscribe(event.TypeExpenseApproved, "notify.approved", s.HandleApproved)
	d.Subscribe(event.TypeExpenseRejected, "notify.rejected", s.HandleRejected)

	for _, t := range []event.Type{
		event.TypeChainBuilt,
		event.TypeEntryResolved,
		event.TypeRuleFired,
		event.TypeEscalationTriggered,
	} {
		d.Subscribe(t, "audit.log", s.logEvent)
	}
}

// HandleSubmitted tells the employee the expense is under review and asks
// the first-level approvers to act
func (s *notificationServiceImpl) HandleSubmitted(ctx context.Context, evt *event.Event) error {
	exp, employee, err := s.load(ctx, evt)
	if err != nil {
		return err
	}

	if err := s.notifier.NotifySubmitted(ctx, exp, employee); err != nil {
		return fmt.Errorf("notify submitted: %w", err)
	}

	ids := evt.GetPayloadStrings(event.KeyApprovers)
	if len(ids) == 0 {
		return nil
	}
	return s.requestApproval(ctx, exp, ids, false)
}

func (s *notificationServiceImpl) HandleApprovalRequested(ctx context.Context, evt *event.Event) error {
	exp, _, err := s.load(ctx, evt)
	if err != nil {
		return err
	}
	return s.requestApproval(ctx, exp, evt.GetPayloadStrings(event.KeyApprovers), evt.GetPayloadBool(event.KeyEscalated))
}

func (s *notificationServiceImpl) HandleApproved(ctx context.Context, evt *event.Event) error {
	exp, employee, err := s.load(ctx, evt)
	if err != nil {
		return err
	}
	if err := s.notifier.NotifyApproved(ctx, exp, employee); err != nil {
		return fmt.Errorf("notify approved: %w", err)
	}
	s.logger.Info("Approval notification sent", "expense_id", exp.ID, "employee_id", exp.EmployeeID)
	return nil
}

func (s *notificationServiceImpl) HandleRejected(ctx context.Context, evt *event.Event) error {
	exp, employee, err := s.load(ctx, evt)
	if err != nil {
		return err
	}

	reason := evt.GetPayloadString(event.KeyReason)
	if reason == "" {
		reason = exp.RejectionReason
	}
	if err := s.notifier.NotifyRejected(ctx, exp, employee, reason); err != nil {
		return fmt.Errorf("notify rejected: %w", err)
	}
	s.logger.Info("Rejection notification sent", "expense_id", exp.ID, "employee_id", exp.EmployeeID)
	return nil
}

func (s *notificationServiceImpl) requestApproval(ctx context.Context, exp *entity.Expense, ids []string, escalated bool) error {
	approvers, err := s.directory.LookupActiveUsers(ctx, exp.TenantID, ids)
	if err != nil {
		return fmt.Errorf("lookup approvers: %w", err)
	}
	if len(approvers) == 0 {
		return nil
	}

	if err := s.notifier.NotifyApprovalRequested(ctx, exp, approvers, escalated); err != nil {
		return fmt.Errorf("notify approval requested: %w", err)
	}
	s.logger.Info("Approval requested",
		"expense_id", exp.ID,
		"approvers", len(approvers),
		"escalated", escalated,
	)
	return nil
}

func (s *notificationServiceImpl) load(ctx context.Context, evt *event.Event) (*entity.Expense, *entity.User, error) {
	exp, err := s.expenseRepo.Get(ctx, evt.TenantID, evt.ExpenseID)
	if err != nil {
		return nil, nil, fmt.Errorf("get expense: %w", err)
	}

	employee, err := s.directory.LookupUser(ctx, exp.TenantID, exp.EmployeeID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup employee: %w", err)
	}
	return exp, employee, nil
}

func (s *notificationServiceImpl) logEvent(ctx context.Context, evt *event.Event) error {
	kv := []interface{}{
		"event_type", evt.Type.String(),
		"event_id", evt.ID,
		"tenant_id", evt.TenantID,
		"expense_id", evt.ExpenseID,
		"correlation_id", evt.CorrelationID,
	}
	for k, v := range evt.Payload {
		kv = append(kv, k, v)
	}
	s.logger.Info("Approval event", kv...)
	return nil
}
