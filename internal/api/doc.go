// Package api exposes the task queue to producers over HTTP. Handlers
// decode and validate requests, call the task service and translate its
// errors into status codes without leaking internal detail.
//
// Routes other than /health require a producer bearer token; the agent
// named by the token becomes the source_agent of every task it enqueues.
package api
