// Package client is a thin HTTP client for the ember API, used by the CLI.
// API errors come back as *Error values that unwrap to the scheduler's
// sentinel errors.
package client
