// Package version is filled in at build time through -ldflags.
package version

var (
	Version     = "unknown"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)
