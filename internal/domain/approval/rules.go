package approval

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// MatchRule evaluates a legacy workflow rule row against the subject
func MatchRule(rule entity.WorkflowRule, s Subject) bool {
	value := strings.TrimSpace(rule.Value)

	switch rule.Condition {
	case entity.RuleConditionAmountThreshold:
		threshold, err := decimal.NewFromString(value)
		if err != nil {
			return false
		}
		return s.Amount.GreaterThanOrEqual(threshold)
	case entity.RuleConditionCategory:
		return strings.EqualFold(s.Category, value)
	case entity.RuleConditionDepartment:
		return strings.EqualFold(s.Department, value)
	case entity.RuleConditionEmployeeLevel:
		return strings.EqualFold(s.Role, value)
	}
	return false
}

// FirstMatchingRule returns the first legacy rule of the workflow that
// matches, or nil.
func FirstMatchingRule(wf *entity.Workflow, s Subject) *entity.WorkflowRule {
	for i := range wf.Rules {
		if MatchRule(wf.Rules[i], s) {
			return &wf.Rules[i]
		}
	}
	return nil
}
