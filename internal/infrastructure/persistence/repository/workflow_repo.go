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

const workflowColumns = `
	id, tenant_id, name, description, is_active, is_default, rules,
	approval_sequence, conditional_rules, default_approvers, escalation_settings,
	created_at, updated_at`

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// workflowDocs holds the JSON encoded rule lists of a workflow
type workflowDocs struct {
	rules, sequence, conditional, defaults, escalation string
}

func encodeWorkflow(wf *entity.Workflow) (workflowDocs, error) {
	var (
		d   workflowDocs
		err error
	)
	if d.rules, err = encodeJSON("rules", nonNil(wf.Rules)); err != nil {
		return d, err
	}
	if d.sequence, err = encodeJSON("approval sequence", nonNil(wf.ApprovalSequence)); err != nil {
		return d, err
	}
	if d.conditional, err = encodeJSON("conditional rules", nonNil(wf.ConditionalRules)); err != nil {
		return d, err
	}
	if d.defaults, err = encodeJSON("default approvers", nonNil(wf.DefaultApprovers)); err != nil {
		return d, err
	}
	if d.escalation, err = encodeJSON("escalation settings", wf.EscalationSettings); err != nil {
		return d, err
	}
	return d, nil
}

// Create inserts a workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	return r.insert(ctx, "INSERT", wf)
}

func (r *WorkflowRepository) insert(ctx context.Context, verb string, wf *entity.Workflow) error {
	docs, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}

	query := verb + ` INTO workflows (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		wf.ID,
		wf.TenantID,
		wf.Name,
		wf.Description,
		boolToInt(wf.IsActive),
		boolToInt(wf.IsDefault),
		docs.rules,
		docs.sequence,
		docs.conditional,
		docs.defaults,
		docs.escalation,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow of the tenant by ID, active or not
func (r *WorkflowRepository) Get(ctx context.Context, tenantID, id string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ? AND tenant_id = ?`
	return r.getOne(ctx, id, query, id, tenantID)
}

// GetByName retrieves a workflow of the tenant by its unique name
func (r *WorkflowRepository) GetByName(ctx context.Context, tenantID, name string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = ? AND name = ?`
	return r.getOne(ctx, name, query, tenantID, name)
}

func (r *WorkflowRepository) getOne(ctx context.Context, key, query string, args ...interface{}) (*entity.Workflow, error) {
	wf, err := scanWorkflow(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.E("get workflow", approval.ErrWorkflowNotFound, "%s", key)
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// Update replaces a workflow definition
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow) error {
	docs, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows SET
			name = ?, description = ?, is_active = ?, is_default = ?, rules = ?,
			approval_sequence = ?, conditional_rules = ?, default_approvers = ?,
			escalation_settings = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		wf.Name,
		wf.Description,
		boolToInt(wf.IsActive),
		boolToInt(wf.IsDefault),
		docs.rules,
		docs.sequence,
		docs.conditional,
		docs.defaults,
		docs.escalation,
		wf.UpdatedAt,
		wf.ID,
		wf.TenantID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return approval.E("update workflow", approval.ErrWorkflowNotFound, "%s", wf.ID)
	}
	return nil
}

// List returns the tenant's workflows ordered by creation
func (r *WorkflowRepository) List(ctx context.Context, tenantID string, includeInactive bool) ([]*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
		WHERE tenant_id = ? AND (? = 1 OR is_active = 1)
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, tenantID, boolToInt(includeInactive))
}

// ListActiveNonDefault returns the selection candidates of a tenant
func (r *WorkflowRepository) ListActiveNonDefault(ctx context.Context, tenantID string) ([]*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
		WHERE tenant_id = ? AND is_active = 1 AND is_default = 0
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, tenantID)
}

// GetDefault returns the tenant's default workflow, or nil when none exists
func (r *WorkflowRepository) GetDefault(ctx context.Context, tenantID string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = ? AND is_default = 1`
	wf, err := scanWorkflow(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default workflow: %w", err)
	}
	return wf, nil
}

// CreateDefaultIfAbsent relies on the partial unique index over
// (tenant_id) WHERE is_default = 1, so concurrent callers converge on one row.
func (r *WorkflowRepository) CreateDefaultIfAbsent(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error) {
	wf.IsDefault = true
	if err := r.insert(ctx, "INSERT OR IGNORE", wf); err != nil {
		return nil, err
	}

	stored, err := r.GetDefault(ctx, wf.TenantID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("default workflow for tenant %s was not stored", wf.TenantID)
	}
	return stored, nil
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Workflow, error) {
	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*entity.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func scanWorkflow(s scanner) (*entity.Workflow, error) {
	var (
		wf                                 entity.Workflow
		isActive, isDefault                int
		rules, sequence, conditional, defs string
		escalation                         string
	)
	err := s.Scan(
		&wf.ID,
		&wf.TenantID,
		&wf.Name,
		&wf.Description,
		&isActive,
		&isDefault,
		&rules,
		&sequence,
		&conditional,
		&defs,
		&escalation,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	wf.IsActive = isActive == 1
	wf.IsDefault = isDefault == 1
	if err := decodeJSON("rules", rules, &wf.Rules); err != nil {
		return nil, err
	}
	if err := decodeJSON("approval sequence", sequence, &wf.ApprovalSequence); err != nil {
		return nil, err
	}
	if err := decodeJSON("conditional rules", conditional, &wf.ConditionalRules); err != nil {
		return nil, err
	}
	if err := decodeJSON("default approvers", defs, &wf.DefaultApprovers); err != nil {
		return nil, err
	}
	if err := decodeJSON("escalation settings", escalation, &wf.EscalationSettings); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
