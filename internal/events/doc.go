// Package events provides in-process task lifecycle events.
//
// The worker emits a TaskFinishedEvent after every terminal write-back;
// handlers such as the planner reply handler react to it without the worker
// knowing about them. Delivery is synchronous and best effort: a failing
// handler never changes the task that produced the event.
//
// The primary components are:
// - TaskFinishedEvent: snapshot of a task that completed or failed
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
