// Package version holds build-time version information, injected via
// -ldflags at release time.
package version

import "fmt"

var (
	// Version is the semantic version of this build. "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC 3339 format.
	Date = "unknown"
)

// String returns the full version string for banners and --version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
