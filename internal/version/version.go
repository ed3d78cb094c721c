// Package version holds build metadata set with -ldflags "-X".
package version

import "fmt"

var (
	// Version is the release tag of the decoder.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String(program string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", program, Version, GitSHA, BuildTime)
}
