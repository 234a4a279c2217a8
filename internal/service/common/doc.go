// Package common holds helpers shared by several services.
//
// It provides a lightweight client for the monitor gRPC API with per-call
// timeouts and operator identity, and detects the current system actor
// (hostname/username) for audit purposes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
