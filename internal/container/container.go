package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/tracing"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Observability
	shutdownTracing tracing.ShutdownFunc

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier port.Notifier

	// Infrastructure - Storage
	fileStorage port.FileStorage

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Expense  port.ExpenseRepository
	Workflow port.WorkflowRepository
	User     port.UserRepository
	History  port.HistoryRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Approval     service.ApprovalService
	Escalation   service.EscalationService
	Workflow     service.WorkflowService
	Directory    service.DirectoryService
	Notification service.NotificationService
	Report       service.ReportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database and repositories
// 3. Notifier
// 4. Storage
// 5. Event dispatcher
// 6. Application services and event handlers
// 7. Workflow seeds and workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize tracing
	shutdown, err := tracing.Init(tracing.Config{
		Enabled:        c.config.Tracing.Enabled,
		ServiceName:    c.config.Tracing.ServiceName,
		ServiceVersion: c.config.Tracing.ServiceVersion,
		OutputPath:     c.config.Tracing.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.shutdownTracing = shutdown

	// Step 2: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 3: Initialize notifier
	c.notifier = ProvideNotifier(&c.config.Lark, c.logger)

	// Step 4: Initialize storage
	fileStorage, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.fileStorage = fileStorage
	c.logger.Info("Storage initialized")

	// Step 5: Initialize dispatcher
	c.dispatcher = ProvideDispatcher(&c.config.Dispatcher, c.logger)

	// Step 6: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 7: Import workflow seeds, then start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse start order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	var errs []error
	for _, step := range c.shutdownSteps() {
		if err := step.run(); err != nil {
			c.logger.Error("Shutdown step failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		c.logger.Debug("Shutdown step done", zap.String("step", step.name))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

type shutdownStep struct {
	name string
	run  func() error
}

// shutdownSteps lists teardown for the components Start got to, workers
// first and tracing last
func (c *Container) shutdownSteps() []shutdownStep {
	var steps []shutdownStep
	if c.workers != nil {
		steps = append(steps, shutdownStep{"stop workers", c.workers.StopAll})
	}
	// waits for in-flight notification handlers
	if c.dispatcher != nil {
		steps = append(steps, shutdownStep{"close dispatcher", c.dispatcher.Close})
	}
	if c.database != nil {
		steps = append(steps, shutdownStep{"close database", c.database.Close})
	}
	if c.shutdownTracing != nil {
		steps = append(steps, shutdownStep{"flush traces", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.shutdownTracing(ctx)
		}})
	}
	return steps
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports the database, worker and dispatcher state.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	report := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		status.Overall = status.Overall && healthy
	}

	switch {
	case c.database == nil:
		report("database", false, "not initialized")
	default:
		if err := c.database.Ping(); err != nil {
			report("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			report("database", true, "")
		}
	}

	if c.workers == nil {
		report("workers", false, "not initialized")
	} else {
		// a manager without workers is idle, not broken
		count := c.workers.GetWorkerCount()
		report("workers", c.workers.IsRunning() || count == 0, fmt.Sprintf("worker count: %d", count))
	}

	if c.dispatcher == nil {
		report("dispatcher", false, "not initialized")
	} else {
		report("dispatcher", true, "")
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database.DB, c.logger)
	if err != nil {
		c.database.Close()
		c.database = nil
		return err
	}

	c.repositories = repos
	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Storage:    c.fileStorage,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers imports workflow seeds when they are not watched, then
// creates and starts the background workers.
func (c *Container) initWorkers() error {
	seeds := c.config.Workflows
	if seeds.SeedDir != "" && !seeds.Watch {
		if _, err := worker.ImportDir(c.ctx, c.services.Workflow, seeds.SeedDir, c.logger); err != nil {
			return fmt.Errorf("failed to import workflow seeds: %w", err)
		}
	}

	workers, err := ProvideWorkers(&WorkerDeps{
		Services:   c.services,
		Escalation: &c.config.Escalation,
		Workflows:  &c.config.Workflows,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Notifier returns the notifier.
func (c *Container) Notifier() port.Notifier {
	return c.notifier
}

// FileStorage returns the file storage.
func (c *Container) FileStorage() port.FileStorage {
	return c.fileStorage
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
