package approval

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func approvedEntry(id, approver string) entity.ChainEntry {
	e := entry(id, approver, 1)
	e.Status = entity.EntryStatusApproved
	return e
}

func TestEvaluateAutoApprove_Percentage(t *testing.T) {
	wf := &entity.Workflow{ConditionalRules: []entity.AutoApproveRule{
		{Name: "majority", Type: entity.AutoApproveTypePercentage, Percentage: 60, AutoApprove: true},
	}}

	// two of four approved is 50%
	chain := []entity.ChainEntry{
		approvedEntry("e1", "a"),
		approvedEntry("e2", "b"),
		entry("e3", "c", 2),
		entry("e4", "d", 2),
	}
	d := EvaluateAutoApprove(wf, Subject{}, chain, &chain[1], entity.ActionApprove)
	assert.False(t, d.Matched)
	assert.InDelta(t, 50.0, d.ApprovedPercent, 0.001)

	// three of four approved is 75%
	chain[2].Status = entity.EntryStatusApproved
	d = EvaluateAutoApprove(wf, Subject{}, chain, &chain[2], entity.ActionApprove)
	assert.True(t, d.Matched)
	assert.True(t, d.AutoApprove)
	assert.Equal(t, "majority", d.Rule.Name)
}

func TestEvaluateAutoApprove_SpecificAndHybrid(t *testing.T) {
	chain := []entity.ChainEntry{
		approvedEntry("e1", "cfo"),
		entry("e2", "controller", 2),
		entry("e3", "auditor", 3),
	}

	tests := []struct {
		name string
		rule entity.AutoApproveRule
		want bool
	}{
		{"specific approver present", entity.AutoApproveRule{Type: "specific_approver", SpecificApprovers: []string{"cfo"}, AutoApprove: true}, true},
		{"specific approver absent", entity.AutoApproveRule{Type: "specific_approver", SpecificApprovers: []string{"ceo"}, AutoApprove: true}, false},
		{"hybrid by approver", entity.AutoApproveRule{Type: "hybrid", Percentage: 90, SpecificApprovers: []string{"cfo"}, AutoApprove: true}, true},
		{"hybrid by percentage", entity.AutoApproveRule{Type: "hybrid", Percentage: 30, SpecificApprovers: []string{"ceo"}, AutoApprove: true}, true},
		{"hybrid neither", entity.AutoApproveRule{Type: "hybrid", Percentage: 90, SpecificApprovers: []string{"ceo"}, AutoApprove: true}, false},
		{"matched but auto approve off", entity.AutoApproveRule{Type: "specific_approver", SpecificApprovers: []string{"cfo"}}, false},
		{"unknown type", entity.AutoApproveRule{Type: "quorum", AutoApprove: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &entity.Workflow{ConditionalRules: []entity.AutoApproveRule{tt.rule}}
			d := EvaluateAutoApprove(wf, Subject{}, chain, &chain[0], entity.ActionApprove)
			assert.Equal(t, tt.want, d.Matched && d.AutoApprove)
		})
	}
}

func TestEvaluateAutoApprove_ConditionsAndOrder(t *testing.T) {
	wf := &entity.Workflow{ConditionalRules: []entity.AutoApproveRule{
		{
			Name: "small travel", Type: "specific_approver", SpecificApprovers: []string{"lead"}, AutoApprove: true,
			Conditions: []entity.Condition{
				{Field: "amount", Operator: "less_than", Value: "100"},
				{Field: "category", Operator: "equals", Value: "travel"},
			},
		},
		{Name: "fallback", Type: "specific_approver", SpecificApprovers: []string{"lead"}, AutoApprove: false},
	}}
	chain := []entity.ChainEntry{approvedEntry("e1", "lead"), entry("e2", "admin", 2)}

	d := EvaluateAutoApprove(wf, Subject{Amount: decimal.NewFromInt(50), Category: "Travel"}, chain, &chain[0], entity.ActionApprove)
	assert.True(t, d.AutoApprove)
	assert.Equal(t, "small travel", d.Rule.Name)

	d = EvaluateAutoApprove(wf, Subject{Amount: decimal.NewFromInt(500), Category: "Travel"}, chain, &chain[0], entity.ActionApprove)
	assert.True(t, d.Matched)
	assert.False(t, d.AutoApprove)
	assert.Equal(t, "fallback", d.Rule.Name)
}

func TestEvaluateAutoApprove_RejectNeverFires(t *testing.T) {
	wf := &entity.Workflow{ConditionalRules: []entity.AutoApproveRule{
		{Name: "any", Type: "percentage", Percentage: 0, AutoApprove: true},
	}}
	chain := []entity.ChainEntry{approvedEntry("e1", "a")}

	d := EvaluateAutoApprove(wf, Subject{}, chain, &chain[0], entity.ActionReject)
	assert.False(t, d.Matched)

	d = EvaluateAutoApprove(wf, Subject{}, nil, &entity.ChainEntry{}, entity.ActionApprove)
	assert.False(t, d.Matched, "empty chain never satisfies a percentage")
}
