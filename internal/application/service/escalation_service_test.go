package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

func escalatingWorkflow(escalateTo ...string) *entity.Workflow {
	return &entity.Workflow{
		ID:   "wf-escalating",
		Name: "Escalating",
		ApprovalSequence: []entity.Step{
			{Step: 1, Name: "Manager review", Approvers: []string{"mgr"}, IsRequired: true},
		},
		EscalationSettings: entity.EscalationSettings{
			Enabled:             true,
			EscalationTimeHours: 48,
			EscalationApprovers: escalateTo,
		},
	}
}

func TestEscalationService_CheckEscalation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)
	wf := h.addWorkflow(escalatingWorkflow("fin"))
	exp := h.submit(t, "120", wf.ID)
	h.dispatcher.reset()

	h.clock.Advance(47 * time.Hour)
	added, err := h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, h.expenses.stored(exp.ID).ApprovalChain, 1)
	assert.Empty(t, h.dispatcher.types())

	h.clock.Advance(2 * time.Hour)
	added, err = h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	stored := h.expenses.stored(exp.ID)
	require.Len(t, stored.ApprovalChain, 2)
	esc := stored.ApprovalChain[1]
	assert.Equal(t, "fin", esc.Approver)
	assert.Equal(t, entity.LevelOverride, esc.Level)
	assert.True(t, esc.IsEscalation)
	assert.True(t, esc.IsRequired)
	assert.Equal(t, stored.ApprovalChain[0].ID, esc.EscalatedEntryID)
	assert.Equal(t, "Escalation of Manager review", esc.StepName)
	assert.Equal(t, entity.ExpenseStatusSubmitted, stored.Status)

	assert.Equal(t, []event.Type{event.TypeEscalationTriggered, event.TypeApprovalRequested}, h.dispatcher.types())
	requested := h.dispatcher.last(event.TypeApprovalRequested)
	assert.True(t, requested.GetPayloadBool(event.KeyEscalated))
	assert.Equal(t, []string{"fin"}, requested.GetPayloadStrings(event.KeyApprovers))

	actions := h.history.actions(exp.ID)
	assert.Equal(t, entity.ActionEscalate, actions[len(actions)-1])
	records, err := h.history.GetByExpenseID(ctx, exp.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":1}`, records[len(records)-1].ActionData)

	// already escalated entries are left alone
	h.clock.Advance(72 * time.Hour)
	added, err = h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, h.expenses.stored(exp.ID).ApprovalChain, 2)
}

func TestEscalationService_Resolution(t *testing.T) {
	tests := []struct {
		name               string
		actor              string
		wantOriginalClosed bool
	}{
		{name: "escalation approver acts", actor: "fin", wantOriginalClosed: true},
		{name: "original approver acts first", actor: "mgr", wantOriginalClosed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(defaultUsers()...)
			wf := h.addWorkflow(escalatingWorkflow("fin"))
			exp := h.submit(t, "120", wf.ID)

			h.clock.Advance(49 * time.Hour)
			_, err := h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
			require.NoError(t, err)

			exp, err = h.approval.Approve(ctx, testTenant, exp.ID, tt.actor, "", "")
			require.NoError(t, err)
			assert.Equal(t, entity.ExpenseStatusApproved, exp.Status)

			original, esc := exp.ApprovalChain[0], exp.ApprovalChain[1]
			assert.Equal(t, entity.EntryStatusApproved, original.Status)
			assert.Equal(t, entity.EntryStatusApproved, esc.Status)
			// exactly one side of the escalation is closed on the other's behalf
			assert.Equal(t, tt.wantOriginalClosed, original.AutoClosed)
			assert.Equal(t, !tt.wantOriginalClosed, esc.AutoClosed)
		})
	}
}

// Every entry is timed from submission, so a later level can escalate while
// an earlier one is still open.
func TestEscalationService_LaterLevelTimedFromSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)
	wf := escalatingWorkflow("fin")
	wf.ApprovalSequence = append(wf.ApprovalSequence,
		entity.Step{Step: 2, Name: "Admin review", Approvers: []string{"adm"}, IsRequired: true})
	h.addWorkflow(wf)
	exp := h.submit(t, "120", wf.ID)
	require.Len(t, exp.ApprovalChain, 2)

	h.clock.Advance(49 * time.Hour)
	added, err := h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	stored := h.expenses.stored(exp.ID)
	escalated := make([]string, 0, 2)
	for _, e := range stored.ApprovalChain {
		if e.IsEscalation {
			escalated = append(escalated, e.EscalatedEntryID)
		}
	}
	assert.ElementsMatch(t, []string{exp.ApprovalChain[0].ID, exp.ApprovalChain[1].ID}, escalated)
}

func TestEscalationService_FallsBackToAdmins(t *testing.T) {
	ctx := context.Background()

	t.Run("admins replace missing approvers", func(t *testing.T) {
		h := newHarness(defaultUsers()...)
		wf := h.addWorkflow(escalatingWorkflow("ghost"))
		exp := h.submit(t, "120", wf.ID)

		h.clock.Advance(49 * time.Hour)
		added, err := h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, added)
		assert.Equal(t, "adm", h.expenses.stored(exp.ID).ApprovalChain[1].Approver)
	})

	t.Run("stale approver is not its own escalation", func(t *testing.T) {
		h := newHarness(defaultUsers()...)
		wf := escalatingWorkflow()
		wf.ApprovalSequence[0].Approvers = []string{"adm"}
		h.addWorkflow(wf)
		exp := h.submit(t, "120", wf.ID)

		h.clock.Advance(49 * time.Hour)
		added, err := h.escalation.CheckEscalation(ctx, testTenant, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, added)
	})
}

func TestEscalationService_CheckAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(defaultUsers()...)
	wf := h.addWorkflow(escalatingWorkflow("fin"))
	stale := h.submit(t, "120", wf.ID)

	h.clock.Advance(30 * time.Hour)
	fresh := h.submit(t, "140", wf.ID)

	disabled := escalatingWorkflow("fin")
	disabled.ID = "wf-quiet"
	disabled.Name = "Quiet"
	disabled.EscalationSettings.Enabled = false
	h.addWorkflow(disabled)
	quiet := h.submit(t, "160", disabled.ID)

	h.clock.Advance(20 * time.Hour)
	summary, err := h.escalation.CheckAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Escalated)
	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, 0, summary.Failed)

	assert.Len(t, h.expenses.stored(stale.ID).ApprovalChain, 2)
	assert.Len(t, h.expenses.stored(fresh.ID).ApprovalChain, 1)
	assert.Len(t, h.expenses.stored(quiet.ID).ApprovalChain, 1)
}
