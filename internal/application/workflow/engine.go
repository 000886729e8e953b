package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Lifecycle moves expenses between statuses. It never persists the expense
// itself; callers save it in the same transaction that Transition runs in.
type Lifecycle interface {
	// CanFire reports whether trigger is permitted from the expense's status
	CanFire(expense *entity.Expense, trigger domainwf.Trigger) bool

	// Transition fires trigger, applies the new status and its timestamps to
	// the expense and records a history row
	Transition(ctx context.Context, expense *entity.Expense, trigger domainwf.Trigger, actorID string, data map[string]interface{}) (domainwf.Transition, error)
}

type lifecycle struct {
	historyRepo port.HistoryRepository
	now         func() time.Time
}

// Option configures the lifecycle
type Option func(*lifecycle)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *lifecycle) {
		l.now = now
	}
}

// NewLifecycle creates a new expense lifecycle
func NewLifecycle(historyRepo port.HistoryRepository, opts ...Option) Lifecycle {
	l := &lifecycle{
		historyRepo: historyRepo,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lifecycle) CanFire(expense *entity.Expense, trigger domainwf.Trigger) bool {
	machine, err := BuildExpenseStateMachine(domainwf.State(expense.Status), expense.ApprovalChain)
	if err != nil {
		return false
	}
	return machine.CanFire(trigger)
}

func (l *lifecycle) Transition(ctx context.Context, expense *entity.Expense, trigger domainwf.Trigger, actorID string, data map[string]interface{}) (domainwf.Transition, error) {
	machine, err := BuildExpenseStateMachine(domainwf.State(expense.Status), expense.ApprovalChain)
	if err != nil {
		return domainwf.Transition{}, fmt.Errorf("expense %s: %w", expense.ID, err)
	}

	tr, err := machine.Fire(ctx, trigger)
	if err != nil {
		return domainwf.Transition{}, fmt.Errorf("expense %s: %w", expense.ID, err)
	}

	now := l.now()
	applyStatus(expense, tr, now)

	actionData := ""
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return domainwf.Transition{}, fmt.Errorf("failed to encode action data: %w", err)
		}
		actionData = string(b)
	}

	history := &entity.ApprovalHistory{
		ExpenseID:      expense.ID,
		TenantID:       expense.TenantID,
		ActorUserID:    actorID,
		PreviousStatus: tr.From.String(),
		NewStatus:      tr.To.String(),
		ActionType:     trigger.String(),
		ActionData:     actionData,
		Timestamp:      now,
	}
	if err := l.historyRepo.Create(ctx, history); err != nil {
		return domainwf.Transition{}, fmt.Errorf("failed to create history record: %w", err)
	}

	return tr, nil
}

func applyStatus(expense *entity.Expense, tr domainwf.Transition, now time.Time) {
	at := now
	expense.Status = tr.To.String()
	expense.UpdatedAt = now

	switch tr.To {
	case domainwf.StateSubmitted:
		expense.SubmittedAt = &at
	case domainwf.StateApproved:
		expense.ApprovedAt = &at
		expense.TotalApprovedAmount = expense.Amount
		expense.RejectionReason = ""
	case domainwf.StateRejected:
		expense.ApprovedAt = nil
		expense.TotalApprovedAmount = decimal.Zero
	case domainwf.StatePaid:
		expense.PaidAt = &at
	}
}
