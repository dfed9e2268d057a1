package version

import (
	"fmt"
	"runtime"
)

// Name is the service name reported by the API and the CLI
const Name = "rm-alert-engine"

// Build information set via ldflags, for example
// -X github.com/frostdev-ops/rm-alert-engine/pkg/version.Version=1.4.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains all build-related information
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the release version, or dev-<short commit> for
// development builds
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	commit := GitCommit
	if commit == "" {
		commit = "unknown"
	}
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return "dev-" + commit
}

// GetFullVersion returns a one-line description of the build
func GetFullVersion() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, GetVersion(), GitCommit, BuildDate, GoVersion)
}

// GetBuildInfo returns all build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Name:      Name,
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}
