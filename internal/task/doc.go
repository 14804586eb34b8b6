// Package task runs agent tasks claimed from the durable task store.
//
// A TaskRunner polls the store, claims a batch for its target agent and
// drives each task to completed or failed, or back to pending when the
// RetryPolicy decides to retry. Tasks of one conversation never run at the
// same time: claim skips busy conversations, a batch runs each
// conversation's tasks in order, and a ConversationLocker holds a lease for
// the duration of a task. The Sweeper requeues or fails tasks whose worker
// disappeared mid-processing.
package task
