package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time metadata, overridden via -ldflags "-X".
//
//nolint:gochecknoglobals // Linker-injected values.
var (
	// Version is the semantic version of the build.
	Version = "0.1.0"
	// Commit is the short git SHA of the build, or "none".
	Commit = "none"
	// BuildTime is the UTC build timestamp, or "unknown".
	BuildTime = "unknown"
)

// shortCommitLength is the number of SHA characters kept from VCS info.
const shortCommitLength = 7

// Build describes the running binary.
type Build struct {
	// Version is the semantic version.
	Version string `json:"version"`
	// Commit is the short git SHA.
	Commit string `json:"commit"`
	// BuildTime is the UTC build timestamp.
	BuildTime string `json:"build_time"`
	// GoVersion is the toolchain that produced the binary.
	GoVersion string `json:"go_version"`
	// Platform is GOOS/GOARCH.
	Platform string `json:"platform"`
}

// Current returns the metadata of the running binary.
// Commit and BuildTime fall back to the VCS stamp of the module when not injected.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if build.Commit == "none" && setting.Value != "" {
				build.Commit = setting.Value[:min(len(setting.Value), shortCommitLength)]
			}
		case "vcs.time":
			if build.BuildTime == "unknown" && setting.Value != "" {
				build.BuildTime = setting.Value
			}
		}
	}

	return build
}

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version line.
func Full() string {
	return Current().String()
}

// String formats b as a single line.
func (b Build) String() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, %s %s",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}

// UserAgent identifies a component in outgoing requests, e.g. "plc-monitorctl/0.1.0".
func UserAgent(component string) string {
	return component + "/" + Version
}
