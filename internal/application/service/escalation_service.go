package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/pkg/tracing"
)

// EscalationSummary reports one sweep over actionable expenses
type EscalationSummary struct {
	Checked   int
	Escalated int
	Entries   int
	Failed    int
}

// EscalationService appends escalation entries for stale approvals
type EscalationService interface {
	// CheckEscalation escalates the stale entries of one expense and returns
	// the number of entries appended
	CheckEscalation(ctx context.Context, tenantID, expenseID string) (int, error)

	// CheckAll sweeps every actionable expense. Per-expense failures are
	// logged and counted.
	CheckAll(ctx context.Context, batchSize int) (*EscalationSummary, error)
}

type escalationServiceImpl struct {
	expenseRepo  port.ExpenseRepository
	workflowRepo port.WorkflowRepository
	historyRepo  port.HistoryRepository
	directory    port.ApproverDirectory
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
	newID        func() string
}

// EscalationOption configures the escalation service
type EscalationOption func(*escalationServiceImpl)

// WithEscalationClock overrides the time source
func WithEscalationClock(now func() time.Time) EscalationOption {
	return func(s *escalationServiceImpl) {
		s.now = now
	}
}

// NewEscalationService creates a new EscalationService
func NewEscalationService(
	expenseRepo port.ExpenseRepository,
	workflowRepo port.WorkflowRepository,
	historyRepo port.HistoryRepository,
	directory port.ApproverDirectory,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
	opts ...EscalationOption,
) EscalationService {
	s := &escalationServiceImpl{
		expenseRepo:  expenseRepo,
		workflowRepo: workflowRepo,
		historyRepo:  historyRepo,
		directory:    directory,
		txManager:    txManager,
		dispatcher:   d,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *escalationServiceImpl) CheckEscalation(ctx context.Context, tenantID, expenseID string) (added int, err error) {
	ctx, span := tracing.StartSpan(ctx, "escalation.Check", "expense_id", expenseID)
	defer func() { tracing.End(span, err) }()

	var events []*event.Event

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		added = 0
		events = nil

		exp, err := s.expenseRepo.Get(txCtx, tenantID, expenseID)
		if err != nil {
			return err
		}
		if !exp.IsActionable() || exp.WorkflowID == "" {
			return nil
		}

		wf, err := s.workflowRepo.Get(txCtx, tenantID, exp.WorkflowID)
		if errors.Is(err, approval.ErrWorkflowNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		settings := wf.EscalationSettings
		if !settings.Enabled {
			return nil
		}

		now := s.now()
		stale := approval.StaleEntries(exp.ApprovalChain, settings, now)
		if len(stale) == 0 {
			return nil
		}

		approvers, err := s.escalationApprovers(txCtx, tenantID, settings)
		if err != nil {
			return err
		}
		if len(approvers) == 0 {
			s.logger.Warn("No escalation approvers available", "expense_id", exp.ID, "workflow_id", wf.ID)
			return nil
		}

		var appended []entity.ChainEntry
		for _, e := range stale {
			targets := make([]string, 0, len(approvers))
			for _, a := range approvers {
				if a != e.Approver {
					targets = append(targets, a)
				}
			}
			entries := approval.EscalationEntries(e, targets, now, s.newID)
			if len(entries) == 0 {
				continue
			}
			appended = append(appended, entries...)

			s.logger.Info("Escalation triggered",
				"expense_id", exp.ID,
				"entry_id", e.ID,
				"approver", e.Approver,
				"waited", now.Sub(e.CreatedAt).String(),
				"escalated_to", targets,
			)
			events = append(events, event.NewEvent(event.TypeEscalationTriggered, tenantID, exp.ID, map[string]interface{}{
				event.KeyEntryID:   e.ID,
				event.KeyApprovers: targets,
			}))
		}
		if len(appended) == 0 {
			return nil
		}

		exp.ApprovalChain = append(exp.ApprovalChain, appended...)
		approval.SortChain(exp.ApprovalChain)
		exp.UpdatedAt = now
		added = len(appended)

		data, err := json.Marshal(map[string]interface{}{"entries": added})
		if err != nil {
			return fmt.Errorf("failed to encode action data: %w", err)
		}
		if err := s.historyRepo.Create(txCtx, &entity.ApprovalHistory{
			ExpenseID:      exp.ID,
			TenantID:       exp.TenantID,
			ActorUserID:    "system",
			PreviousStatus: exp.Status,
			NewStatus:      exp.Status,
			ActionType:     entity.ActionEscalate,
			ActionData:     string(data),
			Timestamp:      now,
		}); err != nil {
			return err
		}

		escalatedTo := make([]string, 0, len(appended))
		for _, e := range appended {
			escalatedTo = appendUnique(escalatedTo, e.Approver)
		}
		events = append(events, event.NewEvent(event.TypeApprovalRequested, tenantID, exp.ID, map[string]interface{}{
			event.KeyApprovers: escalatedTo,
			event.KeyEscalated: true,
		}))

		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		return 0, err
	}

	if added > 0 && s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events...)
	}
	return added, nil
}

func (s *escalationServiceImpl) CheckAll(ctx context.Context, batchSize int) (*EscalationSummary, error) {
	expenses, err := s.expenseRepo.ListActionable(ctx, "", batchSize)
	if err != nil {
		return nil, err
	}

	summary := &EscalationSummary{}
	for _, exp := range expenses {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++

		n, err := s.CheckEscalation(ctx, exp.TenantID, exp.ID)
		if err != nil {
			summary.Failed++
			s.logger.Error("Escalation check failed", "error", err, "expense_id", exp.ID, "tenant_id", exp.TenantID)
			continue
		}
		if n > 0 {
			summary.Escalated++
			summary.Entries += n
		}
	}

	if summary.Escalated > 0 || summary.Failed > 0 {
		s.logger.Info("Escalation sweep finished",
			"checked", summary.Checked,
			"escalated", summary.Escalated,
			"entries", summary.Entries,
			"failed", summary.Failed,
		)
	}
	return summary, nil
}

// escalationApprovers resolves the configured approvers, falling back to the
// tenant admins
func (s *escalationServiceImpl) escalationApprovers(ctx context.Context, tenantID string, settings entity.EscalationSettings) ([]string, error) {
	users, err := s.directory.LookupActiveUsers(ctx, tenantID, settings.EscalationApprovers)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		if users, err = s.directory.LookupAdmins(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	return userIDs(users), nil
}
