// Package version holds build-time version information injected via ldflags.
package version

// Version is the semantic version of the build, set via ldflags.
var Version = "dev"

// Commit is the git commit hash of the build, set via ldflags.
var Commit = "unknown"
