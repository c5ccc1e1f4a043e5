package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build metadata set with -ldflags "-X github.com/oshokin/deadman/internal/version.Version=...".
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildTime = "unknown"
)

// Info is the build metadata of the running binary.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
}

// Get collects the build metadata. When no commit was injected, the VCS
// revision stamped by the Go toolchain is used instead.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	if info.Commit != "none" {
		return info
	}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.Commit = shortRevision(setting.Value)
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = setting.Value
			}
		}
	}

	return info
}

// String renders the metadata on one line.
func (i Info) String() string {
	return fmt.Sprintf("deadman %s (commit %s, built %s, %s)", i.Version, i.Commit, i.BuildTime, i.GoVersion)
}

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns the one-line description of the running binary.
func Full() string {
	return Get().String()
}

// KV returns the build metadata as logger key-value pairs.
func KV() []any {
	info := Get()

	return []any{"version", info.Version, "commit", info.Commit, "build_time", info.BuildTime, "go", info.GoVersion}
}

func shortRevision(rev string) string {
	const length = 7

	if len(rev) > length {
		return rev[:length]
	}

	return rev
}
