package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// DefaultWorkflowName is the name of the lazily created tenant default
const DefaultWorkflowName = "Default approval"

// WorkflowSelector picks the workflow that governs an expense
type WorkflowSelector interface {
	Select(ctx context.Context, expense *entity.Expense, employee *entity.User, explicitWorkflowID string) (*entity.Workflow, error)
}

type workflowSelectorImpl struct {
	workflowRepo port.WorkflowRepository
	logger       Logger
	now          func() time.Time
}

// NewWorkflowSelector creates a new WorkflowSelector
func NewWorkflowSelector(workflowRepo port.WorkflowRepository, logger Logger) WorkflowSelector {
	return &workflowSelectorImpl{
		workflowRepo: workflowRepo,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *workflowSelectorImpl) Select(ctx context.Context, expense *entity.Expense, employee *entity.User, explicitWorkflowID string) (*entity.Workflow, error) {
	if explicitWorkflowID != "" {
		wf, err := s.workflowRepo.Get(ctx, expense.TenantID, explicitWorkflowID)
		if err != nil && !errors.Is(err, approval.ErrWorkflowNotFound) {
			return nil, err
		}
		if wf == nil || !wf.IsActive || wf.TenantID != expense.TenantID {
			return nil, approval.E("select workflow", approval.ErrWorkflowNotFound, "%s", explicitWorkflowID)
		}
		return wf, nil
	}

	candidates, err := s.workflowRepo.ListActiveNonDefault(ctx, expense.TenantID)
	if err != nil {
		return nil, err
	}

	subject := approval.NewSubject(expense, employee)
	for _, wf := range candidates {
		if rule := approval.FirstMatchingRule(wf, subject); rule != nil {
			s.logger.Info("Workflow selected",
				"expense_id", expense.ID,
				"workflow_id", wf.ID,
				"workflow", wf.Name,
				"condition", rule.Condition,
			)
			return wf, nil
		}
	}

	wf, err := s.defaultWorkflow(ctx, expense.TenantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Default workflow selected", "expense_id", expense.ID, "workflow_id", wf.ID)
	return wf, nil
}

func (s *workflowSelectorImpl) defaultWorkflow(ctx context.Context, tenantID string) (*entity.Workflow, error) {
	wf, err := s.workflowRepo.GetDefault(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if wf != nil {
		return wf, nil
	}

	wf, err = s.workflowRepo.CreateDefaultIfAbsent(ctx, NewDefaultWorkflow(tenantID, s.now()))
	if err != nil {
		return nil, err
	}
	s.logger.Info("Default workflow created", "tenant_id", tenantID, "workflow_id", wf.ID)
	return wf, nil
}

// NewDefaultWorkflow builds the catch-all workflow: one non-required approval
// at level 1 for any amount, resolved to the manager or the admins.
func NewDefaultWorkflow(tenantID string, now time.Time) *entity.Workflow {
	return &entity.Workflow{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        DefaultWorkflowName,
		Description: "Created automatically when no workflow matches an expense",
		IsActive:    true,
		IsDefault:   true,
		Rules: []entity.WorkflowRule{{
			Condition:         entity.RuleConditionAmountThreshold,
			Value:             "0",
			Level:             1,
			IsRequired:        false,
			IsManagerApprover: true,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
