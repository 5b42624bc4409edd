// Package version holds build identification stamped in via ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the full build identification line used by -version flags
// and the status API.
func String() string {
	return fmt.Sprintf("vigil %s (%s, built %s)", Version, GitSHA, BuildTime)
}
