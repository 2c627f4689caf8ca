// Package version carries build information stamped in at link time.
package version

import "runtime"

// Populated via -ldflags at build time:
//
//	-X github.com/jackzampolin/skillshelf/version.GitRelease=v0.3.0
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = runtime.Version()
)
