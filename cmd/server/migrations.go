package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/formrelay/internal/platform/postgres"
	"github.com/pressly/goose/v3"
)

// handleMigrations runs one goose command against db using the embedded
// migrations.
func handleMigrations(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	log := logger.With("component", "migrations", "command", command)
	goose.SetLogger(&slogGooseLogger{logger: log})

	start := time.Now()
	log.Info("starting migration")
	if err := postgres.RunMigrations(ctx, db, command); err != nil {
		log.Error("migration failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	log.Info("migration finished", "duration", time.Since(start))
	return nil
}

// slogGooseLogger forwards goose output to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf implements goose.Logger.
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements goose.Logger. It does not exit; the error returned by
// goose reaches main, which decides the exit code.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}
