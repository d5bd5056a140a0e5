// Package version holds build information injected at link time.
package version

// Example: go build -ldflags "-X github.com/Flagro/holosophos-erc3/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // ldflags injection targets
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
