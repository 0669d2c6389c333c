/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package version provides version information for the sheaf CLI.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	// Set at build time via ldflags.
	Version   = "dev"     // e.g. "v0.3.0"
	GitCommit = "unknown"
	GitTag    = "unknown"
	BuildTime = "unknown"
	GitDirty  = "" // "dirty" if the working tree had uncommitted changes
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	GitTag    string `json:"gitTag"`
	BuildTime string `json:"buildTime"`
	GitDirty  string `json:"gitDirty,omitempty"`
	GoVersion string `json:"goVersion"`
}

// GetVersion returns the version string: the ldflags version, else the
// module version, else one derived from the git tag and commit.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}

	if GitTag != "unknown" && GitCommit != "unknown" {
		version := GitTag
		commit := GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if commit != "" && !strings.HasSuffix(GitTag, commit) {
			version = fmt.Sprintf("%s-%s", GitTag, commit)
		}
		if GitDirty == "dirty" {
			version += "-dirty"
		}
		return version
	}

	return "dev"
}

// GetBuildInfo returns detailed build information.
func GetBuildInfo() Info {
	return Info{
		Version:   GetVersion(),
		GitCommit: GitCommit,
		GitTag:    GitTag,
		BuildTime: BuildTime,
		GitDirty:  GitDirty,
		GoVersion: runtime.Version(),
	}
}

// UserAgent identifies sheaf in HTTP responses, e.g. "sheaf/v0.3.0".
func UserAgent() string {
	return "sheaf/" + GetVersion()
}
