package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// Trigger is an action that can move an expense between statuses. Trigger
// values double as history action types.
type Trigger string

const (
	TriggerSubmit          Trigger = entity.ActionSubmit
	TriggerApprove         Trigger = entity.ActionApprove
	TriggerAutoApprove     Trigger = entity.ActionAutoApprove
	TriggerReject          Trigger = entity.ActionReject
	TriggerOverrideApprove Trigger = entity.ActionOverrideApprove
	TriggerOverrideReject  Trigger = entity.ActionOverrideReject
	TriggerPay             Trigger = entity.ActionPay
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
