package entity

import "time"

// Workflow describes how approvers are chosen and ordered for a tenant's
// expenses. A workflow is soft-deleted by clearing IsActive.
type Workflow struct {
	ID                 string             `json:"id" yaml:"id,omitempty"`
	TenantID           string             `json:"tenant_id" yaml:"tenant_id"`
	Name               string             `json:"name" yaml:"name"`
	Description        string             `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive           bool               `json:"is_active" yaml:"is_active"`
	IsDefault          bool               `json:"is_default" yaml:"is_default,omitempty"`
	Rules              []WorkflowRule     `json:"rules" yaml:"rules,omitempty"`
	ApprovalSequence   []Step             `json:"approval_sequence" yaml:"approval_sequence,omitempty"`
	ConditionalRules   []AutoApproveRule  `json:"conditional_rules" yaml:"conditional_rules,omitempty"`
	DefaultApprovers   []string           `json:"default_approvers" yaml:"default_approvers,omitempty"`
	EscalationSettings EscalationSettings `json:"escalation_settings" yaml:"escalation_settings,omitempty"`
	CreatedAt          time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time          `json:"updated_at" yaml:"-"`
}

// WorkflowRule is a legacy single-level matcher row
type WorkflowRule struct {
	Condition         string   `json:"condition" yaml:"condition"`
	Value             string   `json:"value" yaml:"value"`
	Approvers         []string `json:"approvers,omitempty" yaml:"approvers,omitempty"`
	Level             int      `json:"level" yaml:"level"`
	IsRequired        bool     `json:"is_required" yaml:"is_required"`
	IsManagerApprover bool     `json:"is_manager_approver" yaml:"is_manager_approver"`
}

// Step is one ordered stage of an approval sequence. All approvers resolved
// for a step share its level and act in parallel.
type Step struct {
	Step              int         `json:"step" yaml:"step"`
	Name              string      `json:"name" yaml:"name"`
	Approvers         []string    `json:"approvers,omitempty" yaml:"approvers,omitempty"`
	IsManagerApprover bool        `json:"is_manager_approver" yaml:"is_manager_approver"`
	IsRequired        bool        `json:"is_required" yaml:"is_required"`
	Conditions        []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// AutoApproveRule can resolve an expense as approved before every required
// entry has been individually approved.
type AutoApproveRule struct {
	Name              string      `json:"name" yaml:"name"`
	Type              string      `json:"type" yaml:"type"`
	Percentage        float64     `json:"percentage" yaml:"percentage"`
	SpecificApprovers []string    `json:"specific_approvers,omitempty" yaml:"specific_approvers,omitempty"`
	AutoApprove       bool        `json:"auto_approve" yaml:"auto_approve"`
	Conditions        []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Condition is a field/operator/value triple. Field and Operator are closed
// enums, see the approval package for evaluation.
type Condition struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value" yaml:"value"`
}

// EscalationSettings controls time-based escalation of stale entries
type EscalationSettings struct {
	Enabled             bool     `json:"enabled" yaml:"enabled"`
	EscalationTimeHours float64  `json:"escalation_time_hours" yaml:"escalation_time_hours"`
	EscalationApprovers []string `json:"escalation_approvers,omitempty" yaml:"escalation_approvers,omitempty"`
}

// HasSequence reports whether the workflow uses the step-based mechanism
func (w *Workflow) HasSequence() bool {
	return len(w.ApprovalSequence) > 0
}
