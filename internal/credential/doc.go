// Package credential hands out usable OAuth access tokens for principals,
// refreshing and persisting them when they expire.
package credential
