// Package version carries build metadata set through -ldflags:
//
//	go build -ldflags "-X github.com/banshee-data/rover.autopilot/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for --version output.
func String(program string) string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("%s %s (%s, built %s)", program, Version, sha, BuildTime)
}
