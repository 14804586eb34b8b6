// Package main is the formrelay binary. It serves the producer HTTP API,
// runs the task worker and sweeper, or both, against one Postgres database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/platform/logger"
)

type options struct {
	mode    string
	migrate string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("formrelay", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.mode, "mode", "", "what to run: all, api or worker (overrides server.mode)")
	fs.StringVar(&opts.migrate, "migrate", "", "run a migration command (up, down, status, version) and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	switch opts.mode {
	case "", modeAll, modeAPI, modeWorker:
	default:
		return options{}, fmt.Errorf("invalid -mode %q: want all, api or worker", opts.mode)
	}
	switch opts.migrate {
	case "", "up", "down", "status", "version":
	default:
		return options{}, fmt.Errorf("invalid -migrate %q: want up, down, status or version", opts.migrate)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("formrelay exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, connects to the database and either executes a
// migration command or runs the application until ctx is canceled.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.mode != "" {
		cfg.Server.Mode = opts.mode
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"mode", cfg.Server.Mode)

	db, err := setupAppDatabase(ctx, cfg.Database, l)
	if err != nil {
		return err
	}

	if opts.migrate != "" {
		defer func() { _ = db.Close() }()
		return handleMigrations(ctx, db, opts.migrate, l)
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
