package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ResolveRequest carries everything a strategy needs to expand a workflow
type ResolveRequest struct {
	Expense  *entity.Expense
	Employee *entity.User
	Workflow *entity.Workflow
	Subject  approval.Subject
	Now      time.Time
}

// ResolutionStrategy expands a workflow into chain entries
type ResolutionStrategy interface {
	Name() string
	Resolve(ctx context.Context, req ResolveRequest) ([]entity.ChainEntry, error)
}

// approverResolver holds the directory lookups shared by the strategies
type approverResolver struct {
	directory port.ApproverDirectory
	newID     func() string
}

func (r *approverResolver) manager(ctx context.Context, req ResolveRequest) (*entity.User, error) {
	if req.Employee == nil {
		return nil, nil
	}
	return r.directory.LookupManager(ctx, req.Expense.TenantID, req.Employee.ID)
}

func (r *approverResolver) entry(approver string, level int, stepName string, required, managerApprover bool, tag string, now time.Time) entity.ChainEntry {
	return entity.ChainEntry{
		ID:                r.newID(),
		Approver:          approver,
		Level:             level,
		StepName:          stepName,
		Status:            entity.EntryStatusPending,
		IsRequired:        required,
		IsManagerApprover: managerApprover,
		Rule:              tag,
		CreatedAt:         now,
	}
}

// SequenceStrategy expands the ordered approval sequence. Every resolved
// approver of a step becomes an entry at the step's level.
type SequenceStrategy struct {
	approverResolver
}

func (s *SequenceStrategy) Name() string { return "sequence" }

func (s *SequenceStrategy) Resolve(ctx context.Context, req ResolveRequest) ([]entity.ChainEntry, error) {
	steps := append([]entity.Step(nil), req.Workflow.ApprovalSequence...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	var chain []entity.ChainEntry
	for _, step := range steps {
		if !approval.EvaluateConditions(step.Conditions, req.Subject) {
			continue
		}

		users, err := s.directory.LookupActiveUsers(ctx, req.Expense.TenantID, step.Approvers)
		if err != nil {
			return nil, fmt.Errorf("resolve step %d approvers: %w", step.Step, err)
		}
		approvers := userIDs(users)

		if step.IsManagerApprover {
			mgr, err := s.manager(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("resolve step %d manager: %w", step.Step, err)
			}
			if mgr != nil {
				approvers = appendUnique(approvers, mgr.ID)
			}
		}

		if len(approvers) == 0 {
			admins, err := s.directory.LookupAdmins(ctx, req.Expense.TenantID)
			if err != nil {
				return nil, fmt.Errorf("resolve step %d admins: %w", step.Step, err)
			}
			approvers = userIDs(admins)
		}

		name := step.Name
		if name == "" {
			name = fmt.Sprintf("Step %d", step.Step)
		}
		for _, id := range approvers {
			chain = append(chain, s.entry(id, step.Step, name, step.IsRequired, step.IsManagerApprover, entity.RuleTagSequence, req.Now))
		}
	}
	return chain, nil
}

// LegacyRuleStrategy expands matching legacy rules, one approver per level
type LegacyRuleStrategy struct {
	approverResolver
}

func (s *LegacyRuleStrategy) Name() string { return "legacy_rules" }

func (s *LegacyRuleStrategy) Resolve(ctx context.Context, req ResolveRequest) ([]entity.ChainEntry, error) {
	seen := make(map[int]bool)

	var chain []entity.ChainEntry
	for _, rule := range req.Workflow.Rules {
		if seen[rule.Level] || !approval.MatchRule(rule, req.Subject) {
			continue
		}
		seen[rule.Level] = true

		approver, err := s.pick(ctx, req, rule)
		if err != nil {
			return nil, fmt.Errorf("resolve level %d approver: %w", rule.Level, err)
		}
		if approver == "" {
			continue
		}
		chain = append(chain, s.entry(approver, rule.Level, fmt.Sprintf("Level %d", rule.Level),
			rule.IsRequired, rule.IsManagerApprover, rule.Condition, req.Now))
	}
	return chain, nil
}

// pick resolves rule approvers, then the manager, then the first admin
func (s *LegacyRuleStrategy) pick(ctx context.Context, req ResolveRequest, rule entity.WorkflowRule) (string, error) {
	users, err := s.directory.LookupActiveUsers(ctx, req.Expense.TenantID, rule.Approvers)
	if err != nil {
		return "", err
	}
	if len(users) > 0 {
		return users[0].ID, nil
	}

	mgr, err := s.manager(ctx, req)
	if err != nil {
		return "", err
	}
	if mgr != nil {
		return mgr.ID, nil
	}

	admins, err := s.directory.LookupAdmins(ctx, req.Expense.TenantID)
	if err != nil {
		return "", err
	}
	if len(admins) > 0 {
		return admins[0].ID, nil
	}
	return "", nil
}

// DefaultApproverStrategy places each default approver on its own level
type DefaultApproverStrategy struct {
	approverResolver
}

func (s *DefaultApproverStrategy) Name() string { return "default_approvers" }

func (s *DefaultApproverStrategy) Resolve(ctx context.Context, req ResolveRequest) ([]entity.ChainEntry, error) {
	users, err := s.directory.LookupActiveUsers(ctx, req.Expense.TenantID, req.Workflow.DefaultApprovers)
	if err != nil {
		return nil, fmt.Errorf("resolve default approvers: %w", err)
	}

	chain := make([]entity.ChainEntry, 0, len(users))
	for i, u := range users {
		level := i + 1
		chain = append(chain, s.entry(u.ID, level, fmt.Sprintf("Default approver %d", level),
			true, false, entity.RuleTagDefaultApprover, req.Now))
	}
	return chain, nil
}

func userIDs(users []*entity.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = appendUnique(out, u.ID)
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
