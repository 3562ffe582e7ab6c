package version

import "fmt"

// Injected at build time via -ldflags "-X econova/pkg/version.Version=...".
var (
	Version       = "dev"
	GitCommit     = "unknown"
	BuildDate     = "unknown"
	ComponentName = "unknown" // nova, novactl
)

// Info is the build identity reported by /health and `novactl version`.
type Info struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildDate     string `json:"build_date"`
	ComponentName string `json:"component_name,omitempty"`
}

func GetInfo() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		ComponentName: ComponentName,
	}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.ComponentName, i.Version, GetShortCommit(), i.BuildDate)
}

// UserAgent identifies outbound HTTP calls, e.g. "econova-nova/1.4.0".
func UserAgent() string {
	return fmt.Sprintf("econova-%s/%s", ComponentName, Version)
}
