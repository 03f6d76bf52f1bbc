// Package buildinfo holds build metadata injected at link time via
// -ldflags "-X github.com/modoterra/wharf/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
