// Package service contains the producer-facing use cases: enqueueing agent
// tasks and reading their state back. It sits between the HTTP API and the
// task store and owns the rules a task must satisfy before it is accepted.
//
// The worker side of the system lives in internal/task; this package never
// claims or executes tasks.
package service
