package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// BuildExpenseStateMachine creates a state machine for the expense lifecycle.
// A plain approval only fires once no required entry of chain is pending.
func BuildExpenseStateMachine(initialState domainwf.State, chain []entity.ChainEntry) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()

	requiredApproved := func(context.Context) bool {
		return approval.AllRequiredApproved(chain)
	}

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	// An approval that leaves required entries pending does not fire a
	// trigger; the expense stays in its actionable state.
	for _, s := range []domainwf.State{domainwf.StateSubmitted, domainwf.StatePendingApproval} {
		builder.Configure(s).
			PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, requiredApproved).
			Permit(domainwf.TriggerAutoApprove, domainwf.StateApproved).
			Permit(domainwf.TriggerReject, domainwf.StateRejected)
	}

	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerPay, domainwf.StatePaid)

	builder.
		PermitFromAny(domainwf.TriggerOverrideApprove, domainwf.StateApproved).
		PermitFromAny(domainwf.TriggerOverrideReject, domainwf.StateRejected)

	return builder.Build(initialState)
}
