package app

import "fmt"

// Set via ldflags, e.g. -X github.com/ppiankov/schemetrust/internal/app.Version=0.2.0
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildVersion formats the build identifiers for logs and the version command
func BuildVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
}
