package version

import "runtime"

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Get returns build metadata for the version endpoint and build_info metric.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
}
