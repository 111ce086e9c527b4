package health

import (
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

type BuildInfo struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime time.Time `json:"build_time,omitempty"`
	Modified  bool      `json:"modified"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// ReadBuildInfo describes the running binary. VCS data embedded by the Go
// toolchain is used unless SAI_CACHE_BUILD_COMMIT or SAI_CACHE_BUILD_TIME
// override it.
func ReadBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		Commit:    "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if embedded, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range embedded.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Commit = shortCommit(setting.Value)
			case "vcs.time":
				if buildTime, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = buildTime
				}
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	}

	if commit := os.Getenv("SAI_CACHE_BUILD_COMMIT"); commit != "" {
		info.Commit = shortCommit(commit)
	}

	if raw := os.Getenv("SAI_CACHE_BUILD_TIME"); raw != "" {
		if buildTime, err := time.Parse(time.RFC3339, raw); err == nil {
			info.BuildTime = buildTime
		}
	}

	return info
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
