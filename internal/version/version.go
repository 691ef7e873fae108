// Package version exposes build metadata stamped in via -ldflags.
package version

// Overridden at release time with
// -ldflags "-X .../internal/version.Version=v1.2.3 ...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
