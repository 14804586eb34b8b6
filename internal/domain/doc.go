// Package domain contains the entities shared by the task queue and the form
// sync: tasks and their state machine, blueprints, external records,
// credentials, and the classified error taxonomy the worker's retry policy
// reads. It has no knowledge of storage or transport.
package domain
