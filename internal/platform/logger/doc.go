// Package logger provides structured logging for the application.
//
// It uses Go's standard library log/slog package to emit JSON logs with a
// configurable level, and carries request- and task-scoped loggers through
// context.Context.
package logger
