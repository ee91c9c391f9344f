package version

import "fmt"

var (
	// Version is the semantic version of the binary, set with -ldflags.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String renders build metadata on one line.
func String() string {
	return fmt.Sprintf("posturewatch %s (%s, built %s)", Version, Commit, BuildDate)
}
