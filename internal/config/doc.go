// Package config handles configuration loading, parsing, and validation
// from a .env file, an optional config.yaml and FORMRELAY_-prefixed
// environment variables. It provides type-safe access to the settings of
// the API, the task worker and its retry policy.
package config
