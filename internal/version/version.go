// Package version reports build metadata for gitcms binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/conneroisu/gitcms/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata shown by `gitcms version` and /api/status.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// Get collects the build metadata. Values not injected by ldflags fall back
// to the module build info recorded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}

	if info.Commit == "" || info.Commit == "unknown" {
		if rev := settings["vcs.revision"]; rev != "" {
			info.Commit = rev
		}
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseBuildTime(settings["vcs.time"])
	}
	info.Dirty = settings["vcs.modified"] == "true"

	if info.Version == "" || info.Version == "dev" {
		switch {
		case bi.Main.Version != "" && bi.Main.Version != "(devel)":
			info.Version = bi.Main.Version
		case len(info.Commit) >= 7 && info.Commit != "unknown":
			info.Version = "dev-" + info.Commit[:7]
		default:
			info.Version = "dev"
		}
	}

	return info
}

// Short returns "v1.2.0 (abc1234)" or just the version.
func (i Info) Short() string {
	if len(i.Commit) < 7 || i.Commit == "unknown" || strings.HasSuffix(i.Version, i.Commit[:7]) {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit[:7])
}

// String renders every field on its own line.
func (i Info) String() string {
	lines := []string{"Version: " + i.Version}
	if i.Commit != "unknown" {
		commit := i.Commit
		if i.Dirty {
			commit += " (modified)"
		}
		lines = append(lines, "Commit: "+commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "Built: "+i.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "Go: "+i.GoVersion, "Platform: "+i.Platform)
	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a release version.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// UserAgent is the User-Agent sent to the GitHub API.
func UserAgent() string {
	return "gitcms/" + strings.TrimPrefix(Get().Version, "v")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
