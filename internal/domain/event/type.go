package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted    Type = "expense.submitted"
	TypeApprovalRequested   Type = "expense.approval_requested"
	TypeExpenseApproved     Type = "expense.approved"
	TypeExpenseRejected     Type = "expense.rejected"
	TypeStatusChanged       Type = "expense.status_changed"
	TypeChainBuilt          Type = "chain.built"
	TypeEntryResolved       Type = "entry.resolved"
	TypeRuleFired           Type = "rule.fired"
	TypeEscalationTriggered Type = "escalation.triggered"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeApprovalRequested,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeStatusChanged,
		TypeChainBuilt,
		TypeEntryResolved,
		TypeRuleFired,
		TypeEscalationTriggered:
		return true
	default:
		return false
	}
}
