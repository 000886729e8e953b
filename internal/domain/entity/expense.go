package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a reimbursable expense owned by an employee. The approval chain
// is embedded in the expense document and persisted with it.
type Expense struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	EmployeeID          string          `json:"employee_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Category            string          `json:"category"`
	Description         string          `json:"description,omitempty"`
	Status              string          `json:"status"`
	WorkflowID          string          `json:"workflow_id,omitempty"`
	ApprovalChain       []ChainEntry    `json:"approval_chain"`
	TotalApprovedAmount decimal.Decimal `json:"total_approved_amount"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ChainEntry is one approver-step pairing in an expense's approval chain.
type ChainEntry struct {
	ID                string     `json:"id"`
	Approver          string     `json:"approver"`
	Level             int        `json:"level"`
	StepName          string     `json:"step_name,omitempty"`
	Status            string     `json:"status"`
	IsRequired        bool       `json:"is_required"`
	IsManagerApprover bool       `json:"is_manager_approver"`
	IsEscalation      bool       `json:"is_escalation,omitempty"`
	EscalatedEntryID  string     `json:"escalated_entry_id,omitempty"`
	AutoClosed        bool       `json:"auto_closed,omitempty"`
	Rule              string     `json:"rule,omitempty"`
	Comments          string     `json:"comments,omitempty"`
	ActionDate        *time.Time `json:"action_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsPending reports whether the entry still awaits a decision
func (e *ChainEntry) IsPending() bool {
	return e.Status == EntryStatusPending
}

// IsActionable reports whether approvers may still act on the expense
func (e *Expense) IsActionable() bool {
	return e.Status == ExpenseStatusSubmitted || e.Status == ExpenseStatusPendingApproval
}

// EntryByID returns a pointer into the chain for the given entry ID
func (e *Expense) EntryByID(id string) *ChainEntry {
	for i := range e.ApprovalChain {
		if e.ApprovalChain[i].ID == id {
			return &e.ApprovalChain[i]
		}
	}
	return nil
}
