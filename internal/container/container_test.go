package container

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const seedUsers = `
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
`

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	seedDir := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(seedDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "acme.yaml"), []byte(seedUsers), 0644))

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "approval.db")
	cfg.Storage.ReportsDir = filepath.Join(dir, "reports")
	cfg.Workflows.SeedDir = seedDir
	cfg.Escalation.Enabled = false
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Lark.Enabled = true
	_, err = NewContainer(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lark.app_id")
}

func TestContainer_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start should fail")

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)

	// seed users were imported on start
	user, err := c.Services().Directory.LookupUser(ctx, "acme", "emp")
	require.NoError(t, err)
	assert.Equal(t, "mgr", user.ManagerID)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestContainer_ApprovalRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	approvals := c.Services().Approval

	exp, err := approvals.CreateExpense(ctx, service.CreateExpenseRequest{
		TenantID:   "acme",
		EmployeeID: "emp",
		Amount:     decimal.RequireFromString("250"),
		Currency:   "usd",
		Category:   "travel",
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", exp.Currency)

	exp, err = approvals.Submit(ctx, "acme", exp.ID, "emp", "")
	require.NoError(t, err)
	require.Len(t, exp.ApprovalChain, 1)
	assert.Equal(t, "mgr", exp.ApprovalChain[0].Approver)

	pending, err := approvals.ListPendingForApprover(ctx, "acme", "mgr")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	exp, err = approvals.Approve(ctx, "acme", exp.ID, "mgr", "", "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.ExpenseStatusApproved, exp.Status)

	history, err := approvals.History(ctx, "acme", exp.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	workflows, err := c.Services().Workflow.List(ctx, "acme", false)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.True(t, workflows[0].IsDefault)
}

func TestContainer_ParallelApproversRace(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, c.Services().Directory.UpsertUser(ctx, &entity.User{
			ID: id, TenantID: "acme", Name: id, Role: entity.RoleManager, IsActive: true,
		}))
	}
	wf, err := c.Services().Workflow.Create(ctx, &entity.Workflow{
		TenantID: "acme",
		Name:     "Dual sign-off",
		IsActive: true,
		ApprovalSequence: []entity.Step{
			{Step: 1, Name: "Finance", Approvers: []string{"a1", "a2"}, IsRequired: true},
		},
	})
	require.NoError(t, err)

	approvals := c.Services().Approval
	for round := 0; round < 5; round++ {
		exp, err := approvals.CreateExpense(ctx, service.CreateExpenseRequest{
			TenantID:   "acme",
			EmployeeID: "emp",
			Amount:     decimal.NewFromInt(int64(100 + round)),
			Category:   "travel",
		})
		require.NoError(t, err)
		exp, err = approvals.Submit(ctx, "acme", exp.ID, "emp", wf.ID)
		require.NoError(t, err)
		require.Len(t, exp.ApprovalChain, 2)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, approver := range []string{"a1", "a2"} {
			wg.Add(1)
			go func(i int, approver string) {
				defer wg.Done()
				_, errs[i] = approvals.Approve(ctx, "acme", exp.ID, approver, "", "")
			}(i, approver)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		stored, err := approvals.GetExpense(ctx, "acme", exp.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ExpenseStatusApproved, stored.Status)
		require.Len(t, stored.ApprovalChain, 2)
		for _, e := range stored.ApprovalChain {
			assert.Equal(t, entity.EntryStatusApproved, e.Status, e.Approver)
			assert.False(t, e.AutoClosed)
		}
	}
}
