// Package version reports the build identity of emsctl.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/emslink/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/emslink/internal/version.Commit=abc1234"
//
// Unset values are filled from VCS build info, then fall back to "dev".
var (
	Version = ""
	Commit  = ""
)

// Info is the resolved build identity.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	GoVersion string `json:"go_version"`
}

var (
	once sync.Once
	info Info
)

// Get resolves the build identity once and caches it.
func Get() Info {
	once.Do(func() {
		info = resolve(Version, Commit, readBuildInfo())
	})
	return info
}

// Full returns "version (commit: hash)".
func Full() string {
	i := Get()
	return fmt.Sprintf("%s (commit: %s)", i.Version, i.Commit)
}

// UserAgent identifies emsctl to bridges.
func UserAgent() string {
	return "emsctl/" + Get().Version
}

type vcsInfo struct {
	revision string
	modified bool
	time     string
}

func readBuildInfo() vcsInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcsInfo{}
	}
	var v vcsInfo
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.revision = setting.Value
		case "vcs.modified":
			v.modified = setting.Value == "true"
		case "vcs.time":
			v.time = setting.Value
		}
	}
	return v
}

func resolve(ver, commit string, vcs vcsInfo) Info {
	i := Info{
		Version:   ver,
		Commit:    commit,
		GoVersion: runtime.Version(),
	}

	if i.Commit == "" && vcs.revision != "" {
		i.Commit = vcs.revision
		if len(i.Commit) > 7 {
			i.Commit = i.Commit[:7]
		}
		i.Dirty = vcs.modified
		if i.Dirty {
			i.Commit += "-dirty"
		}
	}

	if vcs.time != "" {
		if t, err := time.Parse(time.RFC3339, vcs.time); err == nil {
			i.BuiltAt = t.UTC().Format(time.RFC3339)
			if i.Version == "" {
				i.Version = "dev-" + t.Format("20060102")
			}
		}
	}

	if i.Version == "" {
		i.Version = "dev"
	}
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	return i
}
