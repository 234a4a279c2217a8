// Package version exposes build metadata of plc-monitor and plc-monitorctl.
//
// Version, Commit and BuildTime are injected with -ldflags at release time.
// Current falls back to the VCS stamp embedded by the Go toolchain when the
// linker values are absent. Short feeds the cobra --version flag and the gRPC
// user agent, Full the version subcommand.
package version
