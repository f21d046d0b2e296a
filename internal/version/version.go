// Package version holds build metadata injected with -ldflags, falling back to the
// embedded module build info when unset.
package version

import (
	"runtime/debug"
	"strconv"
)

// AppName is the service name used in logs, traces, metrics and profiles
const AppName = "splash-api"

// APIVersion is the public contract version reported at GET /, it changes only
// when request or response shapes change, independent of the build version
const APIVersion = "1.0.0"

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	App        string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get returns the ldflags values with gaps filled from the module build info
func Get() Info {
	out := Info{
		App:        AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		out.fillVCS(bi.Settings)
	}
	return out
}

// fillVCS never overrides ldflags, CommitDate always follows vcs.time
func (i *Info) fillVCS(settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" {
				i.Commit = s.Value
			}
		case "vcs.time":
			i.CommitDate = s.Value
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil {
				i.VCSDirty = &b
			}
		}
	}
}

// HasProvenance reports whether the binary was built by the release pipeline
// rather than a local go build
func (i Info) HasProvenance() bool {
	return i.BuildId != "" && i.Commit != "" && i.Commit != "none"
}
