// Package postgres provides PostgreSQL implementations of the interfaces in
// internal/store: the task queue with its atomic claim, external records,
// sealed credentials, conversation ownership and conversation leases. It
// also embeds the goose migrations that create those tables.
package postgres
