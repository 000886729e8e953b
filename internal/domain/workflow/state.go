package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// State is an expense lifecycle status
type State string

const (
	StateDraft           State = entity.ExpenseStatusDraft
	StateSubmitted       State = entity.ExpenseStatusSubmitted
	StatePendingApproval State = entity.ExpenseStatusPendingApproval
	StateApproved        State = entity.ExpenseStatusApproved
	StateRejected        State = entity.ExpenseStatusRejected
	StatePaid            State = entity.ExpenseStatusPaid
)

var validStates = map[State]bool{
	StateDraft:           true,
	StateSubmitted:       true,
	StatePendingApproval: true,
	StateApproved:        true,
	StateRejected:        true,
	StatePaid:            true,
}

// AllStates lists every lifecycle status in declaration order
func AllStates() []State {
	return []State{StateDraft, StateSubmitted, StatePendingApproval, StateApproved, StateRejected, StatePaid}
}

// IsTerminal reports whether approvers can no longer change the outcome.
// Admin overrides still apply to terminal states.
func (s State) IsTerminal() bool {
	return s == StateRejected || s == StatePaid
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle status
func (s State) IsValid() bool {
	return validStates[s]
}
