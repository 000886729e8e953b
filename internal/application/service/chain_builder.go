package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/tracing"
)

// ChainResult is a built chain and the strategy that produced it
type ChainResult struct {
	Chain    []entity.ChainEntry
	Strategy string
}

// ChainBuilder expands a workflow into an ordered approval chain. An empty
// chain means there is nothing to approve.
type ChainBuilder interface {
	Build(ctx context.Context, expense *entity.Expense, employee *entity.User, wf *entity.Workflow) (*ChainResult, error)
}

type chainBuilderImpl struct {
	sequence ResolutionStrategy
	legacy   ResolutionStrategy
	defaults ResolutionStrategy
	logger   Logger
	now      func() time.Time
}

// ChainBuilderOption configures the chain builder
type ChainBuilderOption func(*chainBuilderImpl, *approverResolver)

// WithChainClock overrides the time source used for entry timestamps
func WithChainClock(now func() time.Time) ChainBuilderOption {
	return func(b *chainBuilderImpl, _ *approverResolver) {
		b.now = now
	}
}

// WithEntryIDs overrides the generator of chain entry IDs
func WithEntryIDs(newID func() string) ChainBuilderOption {
	return func(_ *chainBuilderImpl, r *approverResolver) {
		r.newID = newID
	}
}

// NewChainBuilder creates a new ChainBuilder
func NewChainBuilder(directory port.ApproverDirectory, logger Logger, opts ...ChainBuilderOption) ChainBuilder {
	b := &chainBuilderImpl{
		logger: logger,
		now:    time.Now,
	}
	r := approverResolver{directory: directory, newID: uuid.NewString}
	for _, opt := range opts {
		opt(b, &r)
	}

	b.sequence = &SequenceStrategy{approverResolver: r}
	b.legacy = &LegacyRuleStrategy{approverResolver: r}
	b.defaults = &DefaultApproverStrategy{approverResolver: r}
	return b
}

func (b *chainBuilderImpl) Build(ctx context.Context, expense *entity.Expense, employee *entity.User, wf *entity.Workflow) (result *ChainResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "chain.Build", "expense_id", expense.ID, "workflow_id", wf.ID)
	defer func() { tracing.End(span, err) }()

	req := ResolveRequest{
		Expense:  expense,
		Employee: employee,
		Workflow: wf,
		Subject:  approval.NewSubject(expense, employee),
		Now:      b.now(),
	}

	strategy := b.legacy
	if wf.HasSequence() {
		strategy = b.sequence
	}

	chain, err := strategy.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(chain) == 0 && len(wf.DefaultApprovers) > 0 {
		strategy = b.defaults
		if chain, err = strategy.Resolve(ctx, req); err != nil {
			return nil, err
		}
	}

	approval.SortChain(chain)

	b.logger.Info("Chain built",
		"expense_id", expense.ID,
		"workflow_id", wf.ID,
		"strategy", strategy.Name(),
		"entries", len(chain),
	)

	return &ChainResult{Chain: chain, Strategy: strategy.Name()}, nil
}
