// Package version provides build version information, set with
// -ldflags "-X github.com/benchrun/benchrun/pkg/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// AppID identifies benchrun to object stores in the user agent.
func AppID() string {
	return fmt.Sprintf("benchrun-%s", Version)
}
