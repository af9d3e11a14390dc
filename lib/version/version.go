// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at release time. A plain "go build" leaves them
// at their defaults and [Info] falls back to the VCS stamp the Go
// toolchain embeds in the binary.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Build is the resolved provenance of the running binary.
type Build struct {
	Version string
	Commit  string
	Dirty   bool
	Time    string
}

// Current resolves the linker-injected values, filling any left at
// their defaults from the embedded build info.
func Current() Build {
	build := Build{
		Version: Version,
		Commit:  GitCommit,
		Dirty:   GitDirty == "true",
		Time:    BuildTime,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if build.Commit == "unknown" && setting.Value != "" {
				build.Commit = setting.Value
				if len(build.Commit) > 12 {
					build.Commit = build.Commit[:12]
				}
			}
		case "vcs.modified":
			if GitDirty == "false" && setting.Value == "true" {
				build.Dirty = true
			}
		case "vcs.time":
			if build.Time == "unknown" && setting.Value != "" {
				build.Time = setting.Value
			}
		}
	}
	return build
}

// String formats the build as "VERSION (COMMIT[-dirty], TIME)".
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.Time)
}

// Info returns the one-line version string recorded in reports.
func Info() string {
	return Current().String()
}

// Full adds the Go toolchain and platform to [Info], for --version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
