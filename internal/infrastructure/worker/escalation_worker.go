package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
)

// EscalationChecker sweeps actionable expenses for stale approvals
type EscalationChecker interface {
	CheckAll(ctx context.Context, batchSize int) (*service.EscalationSummary, error)
}

// EscalationWorkerConfig holds configuration for the escalation worker
type EscalationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() EscalationWorkerConfig {
	return EscalationWorkerConfig{
		PollInterval: 15 * time.Minute,
		BatchSize:    500,
	}
}

// EscalationStats reports what the worker has done since it started
type EscalationStats struct {
	Sweeps    int
	Escalated int
	Failed    int
	LastSweep time.Time
	LastError error
}

// EscalationWorker runs the escalation sweep on a fixed interval. The first
// sweep runs immediately on start.
type EscalationWorker struct {
	config  EscalationWorkerConfig
	checker EscalationChecker
	logger  *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     EscalationStats
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(config EscalationWorkerConfig, checker EscalationChecker, logger *zap.Logger) *EscalationWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultEscalationWorkerConfig().PollInterval
	}
	return &EscalationWorker{
		config:  config,
		checker: checker,
		logger:  logger,
	}
}

// Start begins the sweep loop
func (w *EscalationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("escalation worker already running")
	}

	var runCtx context.Context
	runCtx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("EscalationWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (w *EscalationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("EscalationWorker stopped",
		zap.Int("sweeps", stats.Sweeps),
		zap.Int("escalated", stats.Escalated),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *EscalationWorker) Name() string {
	return "EscalationWorker"
}

// Stats returns a snapshot of the worker counters
func (w *EscalationWorker) Stats() EscalationStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// RunOnce performs a single sweep
func (w *EscalationWorker) RunOnce(ctx context.Context) (*service.EscalationSummary, error) {
	summary, err := w.checker.CheckAll(ctx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Sweeps++
	w.stats.LastSweep = time.Now()
	w.stats.LastError = err
	if summary != nil {
		w.stats.Escalated += summary.Escalated
		w.stats.Failed += summary.Failed
	}
	w.mu.Unlock()

	return summary, err
}

func (w *EscalationWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Escalation loop context cancelled")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *EscalationWorker) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Escalation sweep failed", zap.Error(err))
	}
}
