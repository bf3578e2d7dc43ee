// Package version provides build information for visitlog.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	Version   = "0.3.0"
	GitCommit = "dev"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info returns multi-line build information.
func Info() string {
	return fmt.Sprintf(
		"visitlog %s\ncommit: %s\nbuilt: %s\ngo: %s\nplatform: %s/%s",
		Version, GitCommit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH,
	)
}

// Short returns the version with an abbreviated commit for release builds.
func Short() string {
	if GitCommit == "dev" || GitCommit == "" {
		return Version
	}
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, commit)
}

// UserAgent identifies visitlog in outbound requests.
func UserAgent() string {
	return "visitlog/" + Version
}
