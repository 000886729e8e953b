package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	appwf "github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/tracing"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateExpenseRequest holds the fields of a new draft expense
type CreateExpenseRequest struct {
	TenantID    string
	EmployeeID  string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
}

// ApprovalService runs expenses through their approval chain
type ApprovalService interface {
	CreateExpense(ctx context.Context, req CreateExpenseRequest) (*entity.Expense, error)
	GetExpense(ctx context.Context, tenantID, expenseID string) (*entity.Expense, error)
	ListExpenses(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]*entity.Expense, error)
	History(ctx context.Context, tenantID, expenseID string) ([]*entity.ApprovalHistory, error)

	// Submit selects a workflow, builds the chain and moves the draft to
	// submitted. An empty chain approves the expense immediately.
	Submit(ctx context.Context, tenantID, expenseID, actorID, workflowID string) (*entity.Expense, error)

	// Approve resolves the actor's entry at the current level. entryID may be
	// empty to pick the actor's eligible entry.
	Approve(ctx context.Context, tenantID, expenseID, actorID, entryID, comments string) (*entity.Expense, error)

	// Reject resolves any pending entry owned by the actor and rejects the expense
	Reject(ctx context.Context, tenantID, expenseID, actorID, entryID, reason, comments string) (*entity.Expense, error)

	// Override lets an admin force approved or rejected from any status
	Override(ctx context.Context, tenantID, expenseID, adminID, decision, comments string) (*entity.Expense, error)

	// MarkPaid moves an approved expense to paid. Admin only.
	MarkPaid(ctx context.Context, tenantID, expenseID, actorID string) (*entity.Expense, error)

	// ListPendingForApprover returns expenses the approver can act on now
	ListPendingForApprover(ctx context.Context, tenantID, approverID string) ([]*entity.Expense, error)
}

type approvalServiceImpl struct {
	expenseRepo  port.ExpenseRepository
	workflowRepo port.WorkflowRepository
	historyRepo  port.HistoryRepository
	directory    port.ApproverDirectory
	selector     WorkflowSelector
	builder      ChainBuilder
	lifecycle    appwf.Lifecycle
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
	newID        func() string
}

// ApprovalOption configures the approval service
type ApprovalOption func(*approvalServiceImpl)

// WithApprovalClock overrides the time source
func WithApprovalClock(now func() time.Time) ApprovalOption {
	return func(s *approvalServiceImpl) {
		s.now = now
	}
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	expenseRepo port.ExpenseRepository,
	workflowRepo port.WorkflowRepository,
	historyRepo port.HistoryRepository,
	directory port.ApproverDirectory,
	selector WorkflowSelector,
	builder ChainBuilder,
	lifecycle appwf.Lifecycle,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
	opts ...ApprovalOption,
) ApprovalService {
	s := &approvalServiceImpl{
		expenseRepo:  expenseRepo,
		workflowRepo: workflowRepo,
		historyRepo:  historyRepo,
		directory:    directory,
		selector:     selector,
		builder:      builder,
		lifecycle:    lifecycle,
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

func (s *approvalServiceImpl) CreateExpense(ctx context.Context, req CreateExpenseRequest) (*entity.Expense, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, &approval.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if !req.Amount.IsPositive() {
		return nil, &approval.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if strings.TrimSpace(req.Category) == "" {
		return nil, &approval.ValidationError{Field: "category", Message: "is required"}
	}
	if _, err := s.directory.LookupUser(ctx, req.TenantID, req.EmployeeID); err != nil {
		return nil, err
	}

	currency := "USD"
	if strings.TrimSpace(req.Currency) != "" {
		code, err := utils.NormalizeCurrency(req.Currency)
		if err != nil {
			return nil, &approval.ValidationError{Field: "currency", Message: err.Error()}
		}
		currency = code
	}

	now := s.now()
	exp := &entity.Expense{
		ID:                  s.newID(),
		TenantID:            req.TenantID,
		EmployeeID:          req.EmployeeID,
		Amount:              req.Amount,
		Currency:            currency,
		Category:            strings.TrimSpace(req.Category),
		Description:         utils.SanitizeString(req.Description),
		Status:              entity.ExpenseStatusDraft,
		ApprovalChain:       []entity.ChainEntry{},
		TotalApprovedAmount: decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.expenseRepo.Create(ctx, exp); err != nil {
		s.logger.Error("Failed to create expense", "error", err, "employee_id", req.EmployeeID)
		return nil, err
	}

	s.logger.Info("Expense created", "expense_id", exp.ID, "tenant_id", exp.TenantID, "amount", exp.Amount.String())
	return exp, nil
}

func (s *approvalServiceImpl) GetExpense(ctx context.Context, tenantID, expenseID string) (*entity.Expense, error) {
	return s.expenseRepo.Get(ctx, tenantID, expenseID)
}

func (s *approvalServiceImpl) ListExpenses(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]*entity.Expense, error) {
	return s.expenseRepo.ListByEmployee(ctx, tenantID, employeeID, limit, offset)
}

func (s *approvalServiceImpl) History(ctx context.Context, tenantID, expenseID string) ([]*entity.ApprovalHistory, error) {
	if _, err := s.expenseRepo.Get(ctx, tenantID, expenseID); err != nil {
		return nil, err
	}
	return s.historyRepo.GetByExpenseID(ctx, expenseID)
}

func (s *approvalServiceImpl) Submit(ctx context.Context, tenantID, expenseID, actorID, workflowID string) (exp *entity.Expense, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Submit", "expense_id", expenseID)
	defer func() { tracing.End(span, err) }()

	var events []*event.Event
	corr := s.newID()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err = s.expenseRepo.Get(txCtx, tenantID, expenseID)
		if err != nil {
			return err
		}
		if exp.EmployeeID != actorID {
			return approval.E("submit", approval.ErrNotAuthorized, "only the owner can submit expense %s", expenseID)
		}
		if exp.Status != entity.ExpenseStatusDraft {
			return approval.E("submit", approval.ErrAlreadyResolved, "expense %s is %s", expenseID, exp.Status)
		}

		employee, err := s.directory.LookupUser(txCtx, tenantID, exp.EmployeeID)
		if err != nil {
			return err
		}

		wf, err := s.selector.Select(txCtx, exp, employee, workflowID)
		if err != nil {
			return err
		}

		built, err := s.builder.Build(txCtx, exp, employee, wf)
		if err != nil {
			return err
		}

		exp.WorkflowID = wf.ID
		exp.ApprovalChain = built.Chain

		if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerSubmit, actorID, map[string]interface{}{
			"workflow_id": wf.ID,
			"strategy":    built.Strategy,
			"entries":     len(built.Chain),
		}); err != nil {
			return err
		}

		events = append(events,
			event.NewEventWithCorrelation(event.TypeChainBuilt, tenantID, exp.ID, map[string]interface{}{
				"workflow_id":       wf.ID,
				"strategy":          built.Strategy,
				event.KeyEntryCount: len(built.Chain),
			}, corr),
			event.NewEventWithCorrelation(event.TypeExpenseSubmitted, tenantID, exp.ID, map[string]interface{}{
				event.KeyActor:     actorID,
				event.KeyApprovers: approval.CurrentApprovers(exp.ApprovalChain),
			}, corr),
		)

		if len(built.Chain) == 0 {
			s.logger.Warn("Configuration gap: empty approval chain, approving immediately",
				"expense_id", exp.ID,
				"workflow_id", wf.ID,
			)
			if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerApprove, "system", map[string]interface{}{
				event.KeyReason: "configuration_gap",
			}); err != nil {
				return err
			}
			events = append(events, event.NewEventWithCorrelation(event.TypeExpenseApproved, tenantID, exp.ID, nil, corr))
		}

		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		s.logFailure("Submit failed", err, expenseID, actorID)
		return nil, err
	}

	s.logger.Info("Expense submitted", "expense_id", exp.ID, "workflow_id", exp.WorkflowID, "status", exp.Status)
	s.publish(ctx, events)
	return exp, nil
}

func (s *approvalServiceImpl) Approve(ctx context.Context, tenantID, expenseID, actorID, entryID, comments string) (exp *entity.Expense, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Approve", "expense_id", expenseID, "actor", actorID)
	defer func() { tracing.End(span, err) }()

	var events []*event.Event
	corr := s.newID()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err = s.loadActionable(txCtx, "approve", tenantID, expenseID)
		if err != nil {
			return err
		}

		levelBefore, _ := approval.CurrentLevel(exp.ApprovalChain)

		entry, err := approval.SelectForApproval(exp.ApprovalChain, actorID, entryID)
		if err != nil {
			return err
		}

		now := s.now()
		approval.ResolveEntry(exp.ApprovalChain, entry, entity.EntryStatusApproved, comments, now)
		resolved := *entry

		s.logger.Info("Entry resolved",
			"expense_id", exp.ID,
			"entry_id", resolved.ID,
			"approver", actorID,
			"level", approval.EffectiveLevel(exp.ApprovalChain, &resolved),
			"status", resolved.Status,
		)
		events = append(events, event.NewEventWithCorrelation(event.TypeEntryResolved, tenantID, exp.ID, map[string]interface{}{
			event.KeyActor:   actorID,
			event.KeyEntryID: resolved.ID,
			event.KeyLevel:   resolved.Level,
			"status":         resolved.Status,
		}, corr))

		wf, err := s.workflowFor(txCtx, exp)
		if err != nil {
			return err
		}
		employee := s.employeeFor(txCtx, exp)

		decision := approval.EvaluateAutoApprove(wf, approval.NewSubject(exp, employee), exp.ApprovalChain, &resolved, entity.ActionApprove)

		switch {
		case decision.AutoApprove:
			closed := approval.ForceClosePending(exp.ApprovalChain, decision.Rule.Name, now)
			s.logger.Info("Conditional rule fired",
				"expense_id", exp.ID,
				"rule", decision.Rule.Name,
				"type", decision.Rule.Type,
				"approved_percent", decision.ApprovedPercent,
				"auto_closed", closed,
			)
			if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerAutoApprove, actorID, map[string]interface{}{
				event.KeyRule:    decision.Rule.Name,
				event.KeyEntryID: resolved.ID,
			}); err != nil {
				return err
			}
			events = append(events,
				event.NewEventWithCorrelation(event.TypeRuleFired, tenantID, exp.ID, map[string]interface{}{
					event.KeyRule: decision.Rule.Name,
				}, corr),
				event.NewEventWithCorrelation(event.TypeExpenseApproved, tenantID, exp.ID, map[string]interface{}{
					event.KeyActor: actorID,
					event.KeyRule:  decision.Rule.Name,
				}, corr),
			)

		case approval.AllRequiredApproved(exp.ApprovalChain):
			if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerApprove, actorID, map[string]interface{}{
				event.KeyEntryID: resolved.ID,
			}); err != nil {
				return err
			}
			events = append(events, event.NewEventWithCorrelation(event.TypeExpenseApproved, tenantID, exp.ID, map[string]interface{}{
				event.KeyActor: actorID,
			}, corr))

		default:
			if err := s.recordEntryAction(txCtx, exp, actorID, entity.ActionApprove, resolved.ID); err != nil {
				return err
			}
			if levelAfter, ok := approval.CurrentLevel(exp.ApprovalChain); ok && levelAfter != levelBefore {
				events = append(events, event.NewEventWithCorrelation(event.TypeApprovalRequested, tenantID, exp.ID, map[string]interface{}{
					event.KeyApprovers: approval.CurrentApprovers(exp.ApprovalChain),
					event.KeyLevel:     levelAfter,
				}, corr))
			}
		}

		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		s.logFailure("Approve failed", err, expenseID, actorID)
		return nil, err
	}

	s.publish(ctx, events)
	return exp, nil
}

func (s *approvalServiceImpl) Reject(ctx context.Context, tenantID, expenseID, actorID, entryID, reason, comments string) (exp *entity.Expense, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Reject", "expense_id", expenseID, "actor", actorID)
	defer func() { tracing.End(span, err) }()

	if strings.TrimSpace(reason) == "" {
		return nil, &approval.ValidationError{Field: "reason", Message: "is required"}
	}

	var events []*event.Event
	corr := s.newID()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err = s.loadActionable(txCtx, "reject", tenantID, expenseID)
		if err != nil {
			return err
		}

		entry, err := approval.SelectForRejection(exp.ApprovalChain, actorID, entryID)
		if err != nil {
			return err
		}

		approval.ResolveEntry(exp.ApprovalChain, entry, entity.EntryStatusRejected, comments, s.now())
		exp.RejectionReason = reason

		if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerReject, actorID, map[string]interface{}{
			event.KeyEntryID: entry.ID,
			event.KeyReason:  reason,
		}); err != nil {
			return err
		}

		events = append(events,
			event.NewEventWithCorrelation(event.TypeEntryResolved, tenantID, exp.ID, map[string]interface{}{
				event.KeyActor:   actorID,
				event.KeyEntryID: entry.ID,
				event.KeyLevel:   entry.Level,
				"status":         entity.EntryStatusRejected,
			}, corr),
			event.NewEventWithCorrelation(event.TypeExpenseRejected, tenantID, exp.ID, map[string]interface{}{
				event.KeyActor:  actorID,
				event.KeyReason: reason,
			}, corr),
		)

		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		s.logFailure("Reject failed", err, expenseID, actorID)
		return nil, err
	}

	s.logger.Info("Expense rejected", "expense_id", exp.ID, "actor", actorID)
	s.publish(ctx, events)
	return exp, nil
}

func (s *approvalServiceImpl) Override(ctx context.Context, tenantID, expenseID, adminID, decision, comments string) (exp *entity.Expense, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Override", "expense_id", expenseID, "admin", adminID)
	defer func() { tracing.End(span, err) }()

	var trigger domainwf.Trigger
	switch decision {
	case entity.EntryStatusApproved:
		trigger = domainwf.TriggerOverrideApprove
	case entity.EntryStatusRejected:
		trigger = domainwf.TriggerOverrideReject
	default:
		return nil, &approval.ValidationError{Field: "decision", Message: "must be approved or rejected"}
	}

	var events []*event.Event

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requireAdmin(txCtx, "override", tenantID, adminID); err != nil {
			return err
		}

		exp, err = s.expenseRepo.Get(txCtx, tenantID, expenseID)
		if err != nil {
			return err
		}

		exp.ApprovalChain = append(exp.ApprovalChain, approval.OverrideEntry(s.newID(), adminID, decision, comments, s.now()))
		if decision == entity.EntryStatusRejected {
			exp.RejectionReason = "Admin override: " + comments
		}

		if _, err := s.lifecycle.Transition(txCtx, exp, trigger, adminID, map[string]interface{}{
			"comments": comments,
		}); err != nil {
			return err
		}

		evtType := event.TypeExpenseApproved
		if decision == entity.EntryStatusRejected {
			evtType = event.TypeExpenseRejected
		}
		events = append(events, event.NewEvent(evtType, tenantID, exp.ID, map[string]interface{}{
			event.KeyActor:  adminID,
			event.KeyReason: exp.RejectionReason,
			"override":      true,
		}))

		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		s.logFailure("Override failed", err, expenseID, adminID)
		return nil, err
	}

	s.logger.Info("Admin override applied", "expense_id", exp.ID, "admin", adminID, "decision", decision)
	s.publish(ctx, events)
	return exp, nil
}

func (s *approvalServiceImpl) MarkPaid(ctx context.Context, tenantID, expenseID, actorID string) (exp *entity.Expense, err error) {
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requireAdmin(txCtx, "mark paid", tenantID, actorID); err != nil {
			return err
		}

		exp, err = s.expenseRepo.Get(txCtx, tenantID, expenseID)
		if err != nil {
			return err
		}
		if !s.lifecycle.CanFire(exp, domainwf.TriggerPay) {
			return approval.E("mark paid", approval.ErrAlreadyResolved, "expense %s is %s", expenseID, exp.Status)
		}

		if _, err := s.lifecycle.Transition(txCtx, exp, domainwf.TriggerPay, actorID, nil); err != nil {
			return err
		}
		return s.expenseRepo.Save(txCtx, exp)
	})
	if err != nil {
		s.logFailure("Mark paid failed", err, expenseID, actorID)
		return nil, err
	}

	s.logger.Info("Expense paid", "expense_id", exp.ID, "actor", actorID)
	return exp, nil
}

func (s *approvalServiceImpl) ListPendingForApprover(ctx context.Context, tenantID, approverID string) ([]*entity.Expense, error) {
	expenses, err := s.expenseRepo.ListActionable(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.Expense, 0)
	for _, exp := range expenses {
		for i := range exp.ApprovalChain {
			if approval.IsEligible(exp.ApprovalChain, &exp.ApprovalChain[i], approverID) {
				out = append(out, exp)
				break
			}
		}
	}
	return out, nil
}

func (s *approvalServiceImpl) loadActionable(ctx context.Context, op, tenantID, expenseID string) (*entity.Expense, error) {
	exp, err := s.expenseRepo.Get(ctx, tenantID, expenseID)
	if err != nil {
		return nil, err
	}
	if !exp.IsActionable() {
		return nil, approval.E(op, approval.ErrAlreadyResolved, "expense %s is %s", expenseID, exp.Status)
	}
	return exp, nil
}

func (s *approvalServiceImpl) requireAdmin(ctx context.Context, op, tenantID, userID string) error {
	u, err := s.directory.LookupUser(ctx, tenantID, userID)
	if errors.Is(err, approval.ErrUserNotFound) {
		return approval.E(op, approval.ErrNotAuthorized, "%s is not an active user", userID)
	}
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return approval.E(op, approval.ErrNotAuthorized, "%s is not an admin", userID)
	}
	return nil
}

// workflowFor loads the workflow the chain was built from. A deleted or
// deactivated workflow still governs expenses already submitted under it.
func (s *approvalServiceImpl) workflowFor(ctx context.Context, exp *entity.Expense) (*entity.Workflow, error) {
	if exp.WorkflowID == "" {
		return nil, nil
	}
	wf, err := s.workflowRepo.Get(ctx, exp.TenantID, exp.WorkflowID)
	if errors.Is(err, approval.ErrWorkflowNotFound) {
		s.logger.Warn("Workflow missing for expense", "expense_id", exp.ID, "workflow_id", exp.WorkflowID)
		return nil, nil
	}
	return wf, err
}

func (s *approvalServiceImpl) employeeFor(ctx context.Context, exp *entity.Expense) *entity.User {
	u, err := s.directory.LookupUser(ctx, exp.TenantID, exp.EmployeeID)
	if err != nil {
		return nil
	}
	return u
}

// recordEntryAction writes a history row for an entry decision that did not
// change the expense status
func (s *approvalServiceImpl) recordEntryAction(ctx context.Context, exp *entity.Expense, actorID, action, entryID string) error {
	data, err := json.Marshal(map[string]string{event.KeyEntryID: entryID})
	if err != nil {
		return err
	}
	return s.historyRepo.Create(ctx, &entity.ApprovalHistory{
		ExpenseID:      exp.ID,
		TenantID:       exp.TenantID,
		ActorUserID:    actorID,
		PreviousStatus: exp.Status,
		NewStatus:      exp.Status,
		ActionType:     action,
		ActionData:     string(data),
		Timestamp:      s.now(),
	})
}

func (s *approvalServiceImpl) publish(ctx context.Context, events []*event.Event) {
	if s.dispatcher == nil || len(events) == 0 {
		return
	}
	s.dispatcher.Publish(ctx, events...)
}

func (s *approvalServiceImpl) logFailure(msg string, err error, expenseID, actorID string) {
	switch approval.KindOf(err) {
	case approval.KindInternal, approval.KindConflict:
		s.logger.Error(msg, "error", err, "expense_id", expenseID, "actor", actorID)
	default:
		s.logger.Warn(msg, "error", err, "expense_id", expenseID, "actor", actorID, "kind", string(approval.KindOf(err)))
	}
}
