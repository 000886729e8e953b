package approval

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ValidateWorkflow checks a workflow definition before it is stored
func ValidateWorkflow(wf *entity.Workflow) error {
	if strings.TrimSpace(wf.TenantID) == "" {
		return invalid("tenant_id", "is required")
	}
	if strings.TrimSpace(wf.Name) == "" {
		return invalid("name", "is required")
	}

	for i, r := range wf.Rules {
		switch r.Condition {
		case entity.RuleConditionAmountThreshold:
			if _, err := decimal.NewFromString(strings.TrimSpace(r.Value)); err != nil {
				return invalid("rules", "rule %d: amount threshold %q is not a number", i, r.Value)
			}
		case entity.RuleConditionCategory, entity.RuleConditionDepartment, entity.RuleConditionEmployeeLevel:
		default:
			return invalid("rules", "rule %d: unknown condition %q", i, r.Condition)
		}
		if r.Level < 1 {
			return invalid("rules", "rule %d: level must be >= 1", i)
		}
	}

	seen := make(map[int]bool)
	for _, s := range wf.ApprovalSequence {
		if s.Step < 1 || s.Step >= entity.LevelOverride {
			return invalid("approval_sequence", "step %d out of range", s.Step)
		}
		if seen[s.Step] {
			return invalid("approval_sequence", "duplicate step %d", s.Step)
		}
		seen[s.Step] = true
		if err := validateConditions("approval_sequence", s.Conditions); err != nil {
			return err
		}
	}

	for _, r := range wf.ConditionalRules {
		switch r.Type {
		case entity.AutoApproveTypePercentage, entity.AutoApproveTypeHybrid:
			if r.Percentage < 0 || r.Percentage > 100 {
				return invalid("conditional_rules", "rule %q: percentage must be within 0..100", r.Name)
			}
		case entity.AutoApproveTypeSpecificApprover:
		default:
			return invalid("conditional_rules", "rule %q: unknown type %q", r.Name, r.Type)
		}
		if r.Type == entity.AutoApproveTypeSpecificApprover && len(r.SpecificApprovers) == 0 {
			return invalid("conditional_rules", "rule %q: specific approvers required", r.Name)
		}
		if err := validateConditions("conditional_rules", r.Conditions); err != nil {
			return err
		}
	}

	if wf.EscalationSettings.Enabled && wf.EscalationSettings.EscalationTimeHours <= 0 {
		return invalid("escalation_settings", "escalation_time_hours must be positive when enabled")
	}

	return nil
}

func validateConditions(field string, conds []entity.Condition) error {
	for _, c := range conds {
		f := Field(c.Field)
		op := Operator(c.Operator)
		if !f.IsValid() {
			return invalid(field, "unknown condition field %q", c.Field)
		}
		if !op.IsValid() {
			return invalid(field, "unknown condition operator %q", c.Operator)
		}
		if (op == OpGreaterThan || op == OpLessThan) && f != FieldAmount {
			return invalid(field, "operator %s only applies to amount", op)
		}
		if f == FieldAmount && op != OpContains {
			if _, err := decimal.NewFromString(strings.TrimSpace(c.Value)); err != nil {
				return invalid(field, "amount value %q is not a number", c.Value)
			}
		}
	}
	return nil
}
