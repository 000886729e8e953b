package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// SampleExpense is the input of a workflow dry run
type SampleExpense struct {
	EmployeeID string          `json:"employee_id"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	Department string          `json:"department"`
	Role       string          `json:"role"`
}

// WorkflowPreview is the chain a workflow would produce for a sample expense
type WorkflowPreview struct {
	Workflow        *entity.Workflow        `json:"workflow"`
	Strategy        string                  `json:"strategy"`
	Chain           []entity.ChainEntry     `json:"chain"`
	Levels          []int                   `json:"levels"`
	ConditionalRule *entity.AutoApproveRule `json:"conditional_rule,omitempty"`
}

// ImportResult counts what a seed import changed
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Users   int `json:"users"`
}

// seedFile is the YAML layout of workflow seed files
type seedFile struct {
	TenantID  string      `yaml:"tenant_id"`
	Users     []yaml.Node `yaml:"users"`
	Workflows []yaml.Node `yaml:"workflows"`
}

// WorkflowService manages workflow definitions
type WorkflowService interface {
	Create(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error)
	Get(ctx context.Context, tenantID, id string) (*entity.Workflow, error)
	List(ctx context.Context, tenantID string, includeInactive bool) ([]*entity.Workflow, error)
	Update(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error)

	// Delete deactivates the workflow; expenses built from it keep working
	Delete(ctx context.Context, tenantID, id string) error

	// ImportYAML upserts the users and workflows of a seed document.
	// Workflows are matched by (tenant, name).
	ImportYAML(ctx context.Context, r io.Reader) (*ImportResult, error)

	// TestWorkflow builds the chain a sample expense would get without
	// storing anything. An empty workflowID runs workflow selection.
	TestWorkflow(ctx context.Context, tenantID, workflowID string, sample SampleExpense) (*WorkflowPreview, error)
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	directory    DirectoryService
	selector     WorkflowSelector
	builder      ChainBuilder
	txManager    port.TransactionManager
	logger       Logger
	now          func() time.Time
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	workflowRepo port.WorkflowRepository,
	directory DirectoryService,
	selector WorkflowSelector,
	builder ChainBuilder,
	txManager port.TransactionManager,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		directory:    directory,
		selector:     selector,
		builder:      builder,
		txManager:    txManager,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *workflowServiceImpl) Create(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error) {
	wf.Name = strings.TrimSpace(wf.Name)
	if err := approval.ValidateWorkflow(wf); err != nil {
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.workflowRepo.GetByName(txCtx, wf.TenantID, wf.Name)
		if err != nil && !errors.Is(err, approval.ErrWorkflowNotFound) {
			return err
		}
		if existing != nil {
			return &approval.ValidationError{Field: "name", Message: fmt.Sprintf("workflow %q already exists", wf.Name)}
		}

		now := s.now()
		wf.ID = uuid.NewString()
		wf.IsDefault = false
		wf.CreatedAt = now
		wf.UpdatedAt = now
		return s.workflowRepo.Create(txCtx, wf)
	})
	if err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "tenant_id", wf.TenantID, "name", wf.Name)
		return nil, err
	}

	s.logger.Info("Workflow created", "workflow_id", wf.ID, "tenant_id", wf.TenantID, "name", wf.Name)
	return wf, nil
}

func (s *workflowServiceImpl) Get(ctx context.Context, tenantID, id string) (*entity.Workflow, error) {
	return s.workflowRepo.Get(ctx, tenantID, id)
}

func (s *workflowServiceImpl) List(ctx context.Context, tenantID string, includeInactive bool) ([]*entity.Workflow, error) {
	return s.workflowRepo.List(ctx, tenantID, includeInactive)
}

func (s *workflowServiceImpl) Update(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error) {
	wf.Name = strings.TrimSpace(wf.Name)
	if err := approval.ValidateWorkflow(wf); err != nil {
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.workflowRepo.Get(txCtx, wf.TenantID, wf.ID)
		if err != nil {
			return err
		}

		if existing.Name != wf.Name {
			clash, err := s.workflowRepo.GetByName(txCtx, wf.TenantID, wf.Name)
			if err != nil && !errors.Is(err, approval.ErrWorkflowNotFound) {
				return err
			}
			if clash != nil && clash.ID != wf.ID {
				return &approval.ValidationError{Field: "name", Message: fmt.Sprintf("workflow %q already exists", wf.Name)}
			}
		}

		wf.IsDefault = existing.IsDefault
		wf.CreatedAt = existing.CreatedAt
		wf.UpdatedAt = s.now()
		return s.workflowRepo.Update(txCtx, wf)
	})
	if err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", wf.ID)
		return nil, err
	}

	s.logger.Info("Workflow updated", "workflow_id", wf.ID, "tenant_id", wf.TenantID)
	return wf, nil
}

func (s *workflowServiceImpl) Delete(ctx context.Context, tenantID, id string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		wf, err := s.workflowRepo.Get(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		if wf.IsDefault {
			return &approval.ValidationError{Field: "id", Message: "the default workflow cannot be deleted"}
		}
		if !wf.IsActive {
			return nil
		}
		wf.IsActive = false
		wf.UpdatedAt = s.now()
		return s.workflowRepo.Update(txCtx, wf)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Workflow deactivated", "workflow_id", id, "tenant_id", tenantID)
	return nil
}

func (s *workflowServiceImpl) ImportYAML(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var seed seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, &approval.ValidationError{Field: "yaml", Message: err.Error()}
	}
	if strings.TrimSpace(seed.TenantID) == "" {
		return nil, &approval.ValidationError{Field: "tenant_id", Message: "is required"}
	}

	users := make([]*entity.User, 0, len(seed.Users))
	for i := range seed.Users {
		u := &entity.User{IsActive: true}
		if err := seed.Users[i].Decode(u); err != nil {
			return nil, &approval.ValidationError{Field: "users", Message: err.Error()}
		}
		if u.TenantID == "" {
			u.TenantID = seed.TenantID
		}
		users = append(users, u)
	}

	workflows := make([]*entity.Workflow, 0, len(seed.Workflows))
	for i := range seed.Workflows {
		wf := &entity.Workflow{IsActive: true}
		if err := seed.Workflows[i].Decode(wf); err != nil {
			return nil, &approval.ValidationError{Field: "workflows", Message: err.Error()}
		}
		if wf.TenantID == "" {
			wf.TenantID = seed.TenantID
		}
		wf.Name = strings.TrimSpace(wf.Name)
		wf.IsDefault = false
		if err := approval.ValidateWorkflow(wf); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		workflows = append(workflows, wf)
	}

	result := &ImportResult{}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		*result = ImportResult{}

		for _, u := range users {
			if err := s.directory.UpsertUser(txCtx, u); err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
			result.Users++
		}

		now := s.now()
		for _, wf := range workflows {
			existing, err := s.workflowRepo.GetByName(txCtx, wf.TenantID, wf.Name)
			if err != nil && !errors.Is(err, approval.ErrWorkflowNotFound) {
				return err
			}

			if existing == nil {
				wf.ID = uuid.NewString()
				wf.CreatedAt = now
				wf.UpdatedAt = now
				if err := s.workflowRepo.Create(txCtx, wf); err != nil {
					return fmt.Errorf("workflow %q: %w", wf.Name, err)
				}
				result.Created++
				continue
			}

			wf.ID = existing.ID
			wf.CreatedAt = existing.CreatedAt
			wf.UpdatedAt = now
			if err := s.workflowRepo.Update(txCtx, wf); err != nil {
				return fmt.Errorf("workflow %q: %w", wf.Name, err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Workflow import failed", "error", err, "tenant_id", seed.TenantID)
		return nil, err
	}

	s.logger.Info("Workflows imported",
		"tenant_id", seed.TenantID,
		"created", result.Created,
		"updated", result.Updated,
		"users", result.Users,
	)
	return result, nil
}

func (s *workflowServiceImpl) TestWorkflow(ctx context.Context, tenantID, workflowID string, sample SampleExpense) (*WorkflowPreview, error) {
	employee := &entity.User{
		TenantID:   tenantID,
		Department: sample.Department,
		Role:       sample.Role,
		IsActive:   true,
	}
	if sample.EmployeeID != "" {
		u, err := s.directory.LookupUser(ctx, tenantID, sample.EmployeeID)
		if err != nil {
			return nil, err
		}
		cp := *u
		if sample.Department != "" {
			cp.Department = sample.Department
		}
		if sample.Role != "" {
			cp.Role = sample.Role
		}
		employee = &cp
	}

	expense := &entity.Expense{
		ID:         "dry-run",
		TenantID:   tenantID,
		EmployeeID: employee.ID,
		Amount:     sample.Amount,
		Category:   sample.Category,
		Status:     entity.ExpenseStatusDraft,
	}

	var wf *entity.Workflow
	var err error
	if workflowID != "" {
		wf, err = s.workflowRepo.Get(ctx, tenantID, workflowID)
	} else {
		wf, err = s.selector.Select(ctx, expense, employee, "")
	}
	if err != nil {
		return nil, err
	}

	built, err := s.builder.Build(ctx, expense, employee, wf)
	if err != nil {
		return nil, err
	}

	preview := &WorkflowPreview{
		Workflow: wf,
		Strategy: built.Strategy,
		Chain:    built.Chain,
		Levels:   []int{},
	}
	for _, e := range built.Chain {
		if n := len(preview.Levels); n == 0 || preview.Levels[n-1] != e.Level {
			preview.Levels = append(preview.Levels, e.Level)
		}
	}

	subject := approval.NewSubject(expense, employee)
	for i := range wf.ConditionalRules {
		if approval.EvaluateConditions(wf.ConditionalRules[i].Conditions, subject) {
			preview.ConditionalRule = &wf.ConditionalRules[i]
			break
		}
	}

	return preview, nil
}
