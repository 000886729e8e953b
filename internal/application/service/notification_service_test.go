package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

type notifyCall struct {
	kind      string
	expenseID string
	userIDs   []string
	escalated bool
	reason    string
}

type mockNotifier struct {
	calls []notifyCall
	err   error
}

func (m *mockNotifier) NotifySubmitted(ctx context.Context, expense *entity.Expense, employee *entity.User) error {
	m.calls = append(m.calls, notifyCall{kind: "submitted", expenseID: expense.ID, userIDs: []string{employee.ID}})
	return m.err
}

func (m *mockNotifier) NotifyApprovalRequested(ctx context.Context, expense *entity.Expense, approvers []*entity.User, escalated bool) error {
	m.calls = append(m.calls, notifyCall{kind: "requested", expenseID: expense.ID, userIDs: userIDs(approvers), escalated: escalated})
	return m.err
}

func (m *mockNotifier) NotifyApproved(ctx context.Context, expense *entity.Expense, employee *entity.User) error {
	m.calls = append(m.calls, notifyCall{kind: "approved", expenseID: expense.ID, userIDs: []string{employee.ID}})
	return m.err
}

func (m *mockNotifier) NotifyRejected(ctx context.Context, expense *entity.Expense, employee *entity.User, reason string) error {
	m.calls = append(m.calls, notifyCall{kind: "rejected", expenseID: expense.ID, userIDs: []string{employee.ID}, reason: reason})
	return m.err
}

func newNotificationFixture(t *testing.T) (*harness, *mockNotifier, NotificationService, *entity.Expense) {
	t.Helper()
	h := newHarness(defaultUsers()...)
	notifier := &mockNotifier{}
	svc := NewNotificationService(h.expenses, h.directory, notifier, h.logger)
	svc.Register(h.dispatcher)

	exp := &entity.Expense{ID: "exp-1", TenantID: testTenant, EmployeeID: "emp", Status: entity.ExpenseStatusSubmitted, RejectionReason: "stored reason"}
	h.expenses.put(exp)
	return h, notifier, svc, exp
}

func TestNotificationService_Register(t *testing.T) {
	h, _, _, _ := newNotificationFixture(t)

	for _, tt := range []struct {
		eventType event.Type
		handler   string
	}{
		{event.TypeExpenseSubmitted, "notify.submitted"},
		{event.TypeApprovalRequested, "notify.approval_requested"},
		{event.TypeExpenseApproved, "notify.approved"},
		{event.TypeExpenseRejected, "notify.rejected"},
		{event.TypeChainBuilt, "audit.log"},
		{event.TypeEntryResolved, "audit.log"},
		{event.TypeRuleFired, "audit.log"},
		{event.TypeEscalationTriggered, "audit.log"},
	} {
		handlers := h.dispatcher.Handlers(tt.eventType)
		require.Len(t, handlers, 1, tt.eventType.String())
		assert.Equal(t, tt.handler, handlers[0].Name)
	}
}

func TestNotificationService_Handlers(t *testing.T) {
	tests := []struct {
		name  string
		event *event.Event
		want  []notifyCall
	}{
		{
			name: "submitted notifies employee and first approvers",
			event: event.NewEvent(event.TypeExpenseSubmitted, testTenant, "exp-1", map[string]interface{}{
				event.KeyApprovers: []string{"mgr", "ghost"},
			}),
			want: []notifyCall{
				{kind: "submitted", expenseID: "exp-1", userIDs: []string{"emp"}},
				{kind: "requested", expenseID: "exp-1", userIDs: []string{"mgr"}},
			},
		},
		{
			name: "escalated approval request",
			event: event.NewEvent(event.TypeApprovalRequested, testTenant, "exp-1", map[string]interface{}{
				event.KeyApprovers: []string{"adm"},
				event.KeyEscalated: true,
			}),
			want: []notifyCall{{kind: "requested", expenseID: "exp-1", userIDs: []string{"adm"}, escalated: true}},
		},
		{
			name:  "request without resolvable approvers sends nothing",
			event: event.NewEvent(event.TypeApprovalRequested, testTenant, "exp-1", map[string]interface{}{event.KeyApprovers: []string{"ghost"}}),
		},
		{
			name:  "approved",
			event: event.NewEvent(event.TypeExpenseApproved, testTenant, "exp-1", nil),
			want:  []notifyCall{{kind: "approved", expenseID: "exp-1", userIDs: []string{"emp"}}},
		},
		{
			name:  "rejected uses event reason",
			event: event.NewEvent(event.TypeExpenseRejected, testTenant, "exp-1", map[string]interface{}{event.KeyReason: "no receipt"}),
			want:  []notifyCall{{kind: "rejected", expenseID: "exp-1", userIDs: []string{"emp"}, reason: "no receipt"}},
		},
		{
			name:  "rejected falls back to stored reason",
			event: event.NewEvent(event.TypeExpenseRejected, testTenant, "exp-1", nil),
			want:  []notifyCall{{kind: "rejected", expenseID: "exp-1", userIDs: []string{"emp"}, reason: "stored reason"}},
		},
		{
			name:  "audit events notify nobody",
			event: event.NewEvent(event.TypeRuleFired, testTenant, "exp-1", map[string]interface{}{event.KeyRule: "majority"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, notifier, _, _ := newNotificationFixture(t)

			require.NoError(t, h.dispatcher.Dispatch(context.Background(), tt.event))
			if tt.want == nil {
				assert.Empty(t, notifier.calls)
				return
			}
			assert.Equal(t, tt.want, notifier.calls)
		})
	}
}

func TestNotificationService_Errors(t *testing.T) {
	h, notifier, svc, _ := newNotificationFixture(t)

	notifier.err = errors.New("lark unavailable")
	err := svc.HandleApproved(context.Background(), event.NewEvent(event.TypeExpenseApproved, testTenant, "exp-1", nil))
	assert.ErrorContains(t, err, "lark unavailable")

	err = h.dispatcher.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseApproved, testTenant, "missing", nil))
	assert.Error(t, err)
}
