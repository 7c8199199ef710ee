// Package buildinfo reports the version stamped into emdash binaries.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

// Version metadata is injected at build time via ldflags, e.g.
// -X github.com/euforicio/emdash/internal/buildinfo.Version=v1.2.0.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns "version (commit date)", omitting the parts that are unset.
// Without ldflags it falls back to the module version recorded by go install.
func Summary() string {
	version := Version
	if version == "" || version == "dev" {
		version = moduleVersion()
	}

	var extra []string
	for _, part := range []string{Commit, Date} {
		if part != "" {
			extra = append(extra, part)
		}
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, " ") + ")"
}

func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
