package entity

import "time"

// ApprovalHistory represents the audit trail of an expense's approval
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	ExpenseID      string    `json:"expense_id"`
	TenantID       string    `json:"tenant_id"`
	ActorUserID    string    `json:"actor_user_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ActionType     string    `json:"action_type"`
	ActionData     string    `json:"action_data"`
	Timestamp      time.Time `json:"timestamp"`
}
