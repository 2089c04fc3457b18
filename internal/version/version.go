// Package version provides build-time version information.
// These variables are set via ldflags at build time.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit SHA
	Commit = "none"

	// Date is the build date in RFC3339 format
	Date = "unknown"
)

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return Version == "dev"
}

// Full returns the full version string for display.
func Full() string {
	if IsDev() {
		return "booth version dev (built from source)"
	}
	return fmt.Sprintf("booth version %s (%s, %s)", Version, shortCommit(), Date)
}

// UserAgent returns the user agent string for API requests.
func UserAgent() string {
	return fmt.Sprintf("booth-cli/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
