// Package version holds the release number of chaos.
package version

import "fmt"

const (
	// Major, Minor and Patch make up the release number.
	Major = 0
	Minor = 1
	Patch = 0

	// Flag marks development builds. Release builds leave it empty.
	Flag = ""
)

var (
	// Version is the full version string, computed at init.
	Version = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

	// GitCommit is set at build time with
	// -ldflags "-X github.com/mosaicnetworks/chaos/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	Version = build(Version, Flag, GitCommit)
}

func build(base, flag, commit string) string {
	v := base
	if flag != "" {
		v += "-" + flag
	}
	if len(commit) >= 8 {
		v += "-" + commit[:8]
	}
	return v
}
