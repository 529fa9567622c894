package app

import "fmt"

// Build metadata, set with -ldflags "-X github.com/small-frappuccino/bruhbot/pkg/app.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// VersionString renders the build metadata for the version command.
func VersionString() string {
	return fmt.Sprintf("version=%s commit=%s built=%s", Version, Commit, BuildDate)
}
