package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const seedYAML = `
tenant_id: acme
users:
  - id: emp
    name: Erin
    role: employee
    department: engineering
    manager_id: mgr
  - id: mgr
    name: Morgan
    role: manager
  - id: adm
    name: Ada
    role: admin
workflows:
  - name: Travel
    description: Travel over 500 needs two levels
    rules:
      - condition: amount_threshold
        value: "500"
        level: 1
    approval_sequence:
      - step: 1
        name: Manager review
        is_manager_approver: true
        is_required: true
      - step: 2
        name: Admin review
        approvers: [adm]
        is_required: true
    conditional_rules:
      - name: admin shortcut
        type: specific_approver
        specific_approvers: [adm]
        auto_approve: true
    escalation_settings:
      enabled: true
      escalation_time_hours: 48
`

func TestWorkflowService_Create(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)

	wf, err := h.workflow.Create(ctx, &entity.Workflow{TenantID: testTenant, Name: " Travel ", IsActive: true})
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "Travel", wf.Name)
	assert.False(t, wf.IsDefault)

	_, err = h.workflow.Create(ctx, &entity.Workflow{TenantID: testTenant, Name: "Travel", IsActive: true})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = h.workflow.Create(ctx, &entity.Workflow{
		TenantID:           testTenant,
		Name:               "Broken",
		EscalationSettings: entity.EscalationSettings{Enabled: true},
	})
	assert.ErrorIs(t, err, approval.ErrValidation)
}

func TestWorkflowService_Update(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)

	travel, err := h.workflow.Create(ctx, &entity.Workflow{TenantID: testTenant, Name: "Travel", IsActive: true})
	require.NoError(t, err)
	_, err = h.workflow.Create(ctx, &entity.Workflow{TenantID: testTenant, Name: "Meals", IsActive: true})
	require.NoError(t, err)

	clash := *travel
	clash.Name = "Meals"
	_, err = h.workflow.Update(ctx, &clash)
	assert.ErrorIs(t, err, approval.ErrValidation)

	renamed := *travel
	renamed.Name = "Trips"
	renamed.IsDefault = true
	updated, err := h.workflow.Update(ctx, &renamed)
	require.NoError(t, err)
	assert.Equal(t, "Trips", updated.Name)
	assert.False(t, updated.IsDefault, "default flag is not editable")
	assert.Equal(t, travel.CreatedAt, updated.CreatedAt)
}

func TestWorkflowService_Delete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)

	wf, err := h.workflow.Create(ctx, &entity.Workflow{TenantID: testTenant, Name: "Travel", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, h.workflow.Delete(ctx, testTenant, wf.ID))

	stored, err := h.workflow.Get(ctx, testTenant, wf.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	active, err := h.workflow.List(ctx, testTenant, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := h.workflow.List(ctx, testTenant, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	def, err := h.workflows.CreateDefaultIfAbsent(ctx, NewDefaultWorkflow(testTenant, h.clock.Now()))
	require.NoError(t, err)
	err = h.workflow.Delete(ctx, testTenant, def.ID)
	assert.ErrorIs(t, err, approval.ErrValidation)

	err = h.workflow.Delete(ctx, testTenant, "missing")
	assert.ErrorIs(t, err, approval.ErrWorkflowNotFound)
}

func TestWorkflowService_ImportYAML(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	result, err := h.workflow.ImportYAML(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Created: 1, Users: 3}, result)

	emp, err := h.directory.LookupUser(ctx, testTenant, "emp")
	require.NoError(t, err)
	assert.True(t, emp.IsActive)
	assert.Equal(t, "mgr", emp.ManagerID)

	wf, err := h.workflows.GetByName(ctx, testTenant, "Travel")
	require.NoError(t, err)
	assert.True(t, wf.IsActive)
	require.Len(t, wf.ApprovalSequence, 2)
	assert.Equal(t, []string{"adm"}, wf.ApprovalSequence[1].Approvers)
	assert.Equal(t, 48.0, wf.EscalationSettings.EscalationTimeHours)

	result, err = h.workflow.ImportYAML(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Updated: 1, Users: 3}, result)

	again, err := h.workflows.GetByName(ctx, testTenant, "Travel")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, again.ID)
}

func TestWorkflowService_ImportYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: "tenant_id: acme\nworkflowz: []\n"},
		{name: "missing tenant", doc: "workflows: []\n"},
		{name: "invalid workflow", doc: "tenant_id: acme\nworkflows:\n  - name: Bad\n    rules:\n      - condition: weather\n        level: 1\n"},
		{name: "not yaml", doc: "tenant_id: [acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()

			_, err := h.workflow.ImportYAML(context.Background(), strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, approval.ErrValidation)
			assert.Equal(t, 0, h.workflows.created)
		})
	}
}

func TestWorkflowService_TestWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.workflow.ImportYAML(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)

	preview, err := h.workflow.TestWorkflow(ctx, testTenant, "", SampleExpense{
		EmployeeID: "emp",
		Amount:     decimal.NewFromInt(800),
		Category:   "travel",
	})
	require.NoError(t, err)
	assert.Equal(t, "Travel", preview.Workflow.Name)
	assert.Equal(t, "sequence", preview.Strategy)
	assert.Equal(t, []int{1, 2}, preview.Levels)
	assert.Equal(t, []chainShape{{"mgr", 1}, {"adm", 2}}, shapeOf(preview.Chain))
	require.NotNil(t, preview.ConditionalRule)
	assert.Equal(t, "admin shortcut", preview.ConditionalRule.Name)

	// below the rule threshold the default workflow applies
	preview, err = h.workflow.TestWorkflow(ctx, testTenant, "", SampleExpense{
		EmployeeID: "emp",
		Amount:     decimal.NewFromInt(20),
		Category:   "travel",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkflowName, preview.Workflow.Name)
	assert.Equal(t, []int{1}, preview.Levels)

	assert.Empty(t, h.expenses.expenses, "dry runs store no expenses")

	_, err = h.workflow.TestWorkflow(ctx, testTenant, "", SampleExpense{EmployeeID: "nobody", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, approval.ErrUserNotFound)
}
