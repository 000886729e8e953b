package entity

// Expense status constants
const (
	ExpenseStatusDraft           = "draft"
	ExpenseStatusSubmitted       = "submitted"
	ExpenseStatusPendingApproval = "pending_approval"
	ExpenseStatusApproved        = "approved"
	ExpenseStatusRejected        = "rejected"
	ExpenseStatusPaid            = "paid"
)

// Chain entry status constants
const (
	EntryStatusPending  = "pending"
	EntryStatusApproved = "approved"
	EntryStatusRejected = "rejected"
)

// Chain entry rule tags record which mechanism produced an entry
const (
	RuleTagSequence        = "sequence_step"
	RuleTagDefaultApprover = "default_approver"
	RuleTagEscalation      = "escalation"
	RuleTagAdminOverride   = "admin_override"
)

// Legacy workflow rule conditions
const (
	RuleConditionAmountThreshold = "amount_threshold"
	RuleConditionCategory        = "category"
	RuleConditionDepartment      = "department"
	RuleConditionEmployeeLevel   = "employee_level"
)

// Auto-approve rule types
const (
	AutoApproveTypePercentage       = "percentage"
	AutoApproveTypeSpecificApprover = "specific_approver"
	AutoApproveTypeHybrid           = "hybrid"
)

// User role constants
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Special levels
const (
	// LevelOverride marks synthetic entries appended after every normal step
	// (admin overrides and escalations).
	LevelOverride = 999
)

// History action constants
const (
	ActionSubmit          = "SUBMIT"
	ActionApprove         = "APPROVE"
	ActionReject          = "REJECT"
	ActionAutoApprove     = "AUTO_APPROVE"
	ActionOverrideApprove = "OVERRIDE_APPROVE"
	ActionOverrideReject  = "OVERRIDE_REJECT"
	ActionEscalate        = "ESCALATE"
	ActionPay             = "PAY"
)
