// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the task worker and the form sync, so that retry and claim logic can be
// tested against in-memory implementations.
package store
