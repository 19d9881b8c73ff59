// Package version reports what build of shellsync is running.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/shellsync"

// buildVersion is set via -ldflags "-X pkt.systems/shellsync/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module   string `yaml:"module"`
	Version  string `yaml:"version"`
	Revision string `yaml:"revision,omitempty"`
	Time     string `yaml:"time,omitempty"`
	Dirty    bool   `yaml:"dirty,omitempty"`
}

// String renders the one-line form printed by the version command.
func (i Info) String() string {
	out := i.Module + " " + i.Version
	if i.Dirty {
		out += " (dirty)"
	}
	return out
}

// Read collects build information from the binary.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info)
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

func fromBuildInfo(info *debug.BuildInfo) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				out.Time = setting.Value
			case "vcs.modified":
				out.Dirty = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(buildVersion) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(buildVersion), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	default:
		if v, err := pseudoVersion(out.Revision, out.Time); err == nil {
			out.Version = v
		}
	}
	return out
}

// pseudoVersion formats a Go pseudo-version from VCS stamps.
func pseudoVersion(revision, vcsTime string) (string, error) {
	if revision == "" || vcsTime == "" {
		return "", fmt.Errorf("missing vcs stamps")
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return "", err
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision, nil
}
