// Package version holds the build identity stamped in with -ldflags at
// release time; unstamped builds report "dev".
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Full renders the identity the binaries print for --version.
func Full() string {
	return Version + " (" + Commit + ") built on " + Date
}
