package container

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	appwf "github.com/garyjia/expense-approval/internal/application/workflow"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies pending migrations.
// Migrations come from MigrationsDir when set, otherwise from the binary.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.NewMigrator(db, logger).RunMigrations(source); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Expense:  repository.NewExpenseRepository(sqlDB, logger),
		Workflow: repository.NewWorkflowRepository(sqlDB, logger),
		User:     repository.NewUserRepository(sqlDB, logger),
		History:  repository.NewHistoryRepository(sqlDB, logger),
	}, nil
}

// ProvideNotifier creates the notifier. Without Lark, messages go to the log.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.Notifier {
	var sender port.MessageSender
	if cfg.Enabled {
		client := infraLark.NewClient(infraLark.Config{
			AppID:     cfg.AppID,
			AppSecret: cfg.AppSecret,
			BaseURL:   cfg.BaseURL,
		}, logger)
		sender = infraLark.NewMessenger(client, logger)
		logger.Info("Lark notifications enabled", zap.String("app_id", client.GetAppID()))
	} else {
		sender = infraLark.NewLogSender(logger)
		logger.Info("Lark notifications disabled, logging messages instead")
	}
	return infraLark.NewNotifier(sender, logger)
}

// ProvideStorage creates the report file storage.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if err := os.MkdirAll(cfg.ReportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.ReportsDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *DispatcherConfig, logger *zap.Logger) dispatcher.Dispatcher {
	opts := []dispatcher.Option{dispatcher.WithLogger(utils.NewKVLogger(logger))}
	if cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Notifier   port.Notifier
	Storage    port.FileStorage
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification handlers to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	logger := utils.NewKVLogger(deps.Logger)
	repos := deps.Repos

	directory := service.NewDirectoryService(repos.User, logger)
	selector := service.NewWorkflowSelector(repos.Workflow, logger)
	builder := service.NewChainBuilder(directory, logger)
	lifecycle := appwf.NewLifecycle(repos.History)

	bundle := &ServiceBundle{
		Directory: directory,
		Approval: service.NewApprovalService(
			repos.Expense, repos.Workflow, repos.History, directory,
			selector, builder, lifecycle, deps.TxManager, deps.Dispatcher, logger,
		),
		Escalation: service.NewEscalationService(
			repos.Expense, repos.Workflow, repos.History, directory,
			deps.TxManager, deps.Dispatcher, logger,
		),
		Workflow:     service.NewWorkflowService(repos.Workflow, directory, selector, builder, deps.TxManager, logger),
		Notification: service.NewNotificationService(repos.Expense, directory, deps.Notifier, logger),
		Report:       service.NewReportService(repos.Expense, deps.Storage, logger),
	}

	bundle.Notification.Register(deps.Dispatcher)
	return bundle, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Services   *ServiceBundle
	Escalation *EscalationConfig
	Workflows  *WorkflowsConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the enabled workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Workflows.Watch {
		manager.Register(worker.NewWorkflowWatcher(worker.WorkflowWatcherConfig{
			Dir: deps.Workflows.SeedDir,
		}, deps.Services.Workflow, deps.Logger))
	}

	if deps.Escalation.Enabled {
		manager.Register(worker.NewEscalationWorker(worker.EscalationWorkerConfig{
			PollInterval: deps.Escalation.PollInterval,
			BatchSize:    deps.Escalation.BatchSize,
		}, deps.Services.Escalation, deps.Logger))
	}

	return manager, nil
}
