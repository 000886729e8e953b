package approval

import (
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Decision is the outcome of evaluating a workflow's conditional rules
type Decision struct {
	// Matched is set when a rule's conditions held and its type criterion was met
	Matched bool
	// AutoApprove is the matched rule's AutoApprove flag
	AutoApprove bool
	Rule        *entity.AutoApproveRule
	// ApprovedPercent is the approved share of the chain at evaluation time
	ApprovedPercent float64
}

// EvaluateAutoApprove runs the conditional rules of wf after justActed was
// resolved with action. Only approvals can trigger an auto-approve. The first
// rule whose conditions hold and whose type criterion is met decides.
func EvaluateAutoApprove(wf *entity.Workflow, s Subject, chain []entity.ChainEntry, justActed *entity.ChainEntry, action string) Decision {
	d := Decision{ApprovedPercent: approvedPercent(chain)}
	if wf == nil || action != entity.ActionApprove || justActed == nil {
		return d
	}

	for i := range wf.ConditionalRules {
		rule := &wf.ConditionalRules[i]
		if !EvaluateConditions(rule.Conditions, s) {
			continue
		}
		if !criterionMet(rule, chain, d.ApprovedPercent) {
			continue
		}
		d.Matched = true
		d.AutoApprove = rule.AutoApprove
		d.Rule = rule
		return d
	}
	return d
}

func criterionMet(rule *entity.AutoApproveRule, chain []entity.ChainEntry, percent float64) bool {
	switch rule.Type {
	case entity.AutoApproveTypePercentage:
		return len(chain) > 0 && percent >= rule.Percentage
	case entity.AutoApproveTypeSpecificApprover:
		return approvedByAny(chain, rule.SpecificApprovers)
	case entity.AutoApproveTypeHybrid:
		return (len(chain) > 0 && percent >= rule.Percentage) || approvedByAny(chain, rule.SpecificApprovers)
	}
	return false
}

func approvedPercent(chain []entity.ChainEntry) float64 {
	if len(chain) == 0 {
		return 0
	}
	return float64(ApprovedCount(chain)) / float64(len(chain)) * 100
}

func approvedByAny(chain []entity.ChainEntry, approvers []string) bool {
	for _, id := range approvers {
		for i := range chain {
			if chain[i].Approver == id && chain[i].Status == entity.EntryStatusApproved {
				return true
			}
		}
	}
	return false
}
