package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/credential"
	"github.com/phrazzld/formrelay/internal/events"
	"github.com/phrazzld/formrelay/internal/formsync"
	"github.com/phrazzld/formrelay/internal/platform/googleforms"
	"github.com/phrazzld/formrelay/internal/platform/postgres"
	"github.com/phrazzld/formrelay/internal/platform/sealer"
	"github.com/phrazzld/formrelay/internal/platform/telemetry"
	"github.com/phrazzld/formrelay/internal/service"
	"github.com/phrazzld/formrelay/internal/service/auth"
	"github.com/phrazzld/formrelay/internal/store"
	"github.com/phrazzld/formrelay/internal/task"
)

// Run modes.
const (
	modeAll    = "all"
	modeAPI    = "api"
	modeWorker = "worker"
)

const telemetryShutdownTimeout = 5 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	telemetry *telemetry.Provider
	metrics   *telemetry.Metrics

	taskStore store.TaskStore

	// API half
	jwtService  auth.JWTService
	taskService service.TaskService

	// Worker half; nil in api mode
	workerID     string
	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner
	sweeper      *task.Sweeper
}

func (app *application) runsAPI() bool {
	return app.config.Server.Mode == modeAll || app.config.Server.Mode == modeAPI
}

func (app *application) runsWorker() bool {
	return app.config.Server.Mode == modeAll || app.config.Server.Mode == modeWorker
}

// newApplication creates a new application instance with all dependencies initialized.
// The database connection must already be established.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	app.metrics, err = telemetry.NewMetrics(app.telemetry.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app.taskStore = postgres.NewPostgresTaskStore(db)

	app.taskService, err = service.NewTaskService(app.taskStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if app.runsAPI() {
		app.jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		logger.Info("JWT authentication service initialized")
	}

	if app.runsWorker() {
		if err := app.setupWorker(); err != nil {
			return nil, err
		}
	}

	logger.Info("application initialized", "mode", cfg.Server.Mode)
	return app, nil
}

// setupWorker wires the execute_form pipeline: sealed credentials, the
// Forms client, idempotent sync, the runner, the sweeper and reply events.
func (app *application) setupWorker() error {
	cfg, logger, db := app.config, app.logger, app.db

	seal, err := sealer.NewFromHex(cfg.Auth.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create token sealer: %w", err)
	}

	records := postgres.NewPostgresExternalRecordStore(db)
	credentials := postgres.NewPostgresCredentialStore(db, seal)
	conversations := postgres.NewPostgresConversationStore(db)
	leases := postgres.NewPostgresLeaseStore(db)

	tokens, err := credential.NewProvider(credentials, cfg.Google, logger)
	if err != nil {
		return fmt.Errorf("failed to create credential provider: %w", err)
	}
	clients, err := googleforms.NewFactory(cfg.Google, logger)
	if err != nil {
		return fmt.Errorf("failed to create forms client factory: %w", err)
	}
	syncer, err := formsync.NewSyncer(records, logger)
	if err != nil {
		return fmt.Errorf("failed to create form syncer: %w", err)
	}
	executeForm, err := task.NewExecuteFormHandler(conversations, tokens, clients, syncer, logger)
	if err != nil {
		return fmt.Errorf("failed to create execute_form handler: %w", err)
	}
	registry, err := task.NewRegistry(executeForm)
	if err != nil {
		return fmt.Errorf("failed to build handler registry: %w", err)
	}

	app.workerID = newWorkerID()
	policy := task.NewRetryPolicy(cfg.Worker)
	locker := task.NewConversationLocker(leases, app.workerID, cfg.Worker.LockWait, cfg.Worker.LockTTL)

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	if cfg.Worker.ReplyToSource {
		app.eventEmitter.RegisterHandler(task.NewReplyEventHandler(app.taskStore, logger))
	}

	app.taskRunner = task.NewTaskRunner(app.taskStore, registry, policy, locker,
		task.NewTaskRunnerConfig(app.workerID, cfg.Worker), logger)
	app.taskRunner.SetEmitter(app.eventEmitter)
	app.taskRunner.SetTelemetry(app.telemetry.Tracer, app.metrics)

	app.sweeper = task.NewSweeper(app.taskStore, policy,
		cfg.Worker.StaleTaskThreshold, cfg.Worker.SweepInterval, logger)
	app.sweeper.SetEmitter(app.eventEmitter)
	app.sweeper.SetMetrics(app.metrics)

	logger.Info("task worker initialized",
		"worker_id", app.workerID,
		"target_agent", cfg.Worker.TargetAgent,
		"batch_size", cfg.Worker.BatchSize,
		"reply_to_source", cfg.Worker.ReplyToSource)
	return nil
}

// newWorkerID names this process in leases and logs.
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Run starts the configured halves and blocks until ctx is canceled or the
// HTTP server fails. Resources are released before it returns.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if app.runsWorker() {
		app.taskRunner.Start(ctx)
		app.sweeper.Start(ctx)
	}

	if app.runsAPI() {
		if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	app.logger.Info("shutdown signal received")
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := app.telemetry.Shutdown(ctx); err != nil {
		app.logger.Error("error shutting down telemetry", "error", err)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
