// Package version provides information about the build version of the binary.
package version

import "fmt"

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Service string `json:"service" yaml:"service"`
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'logrep/internal/core/version.version=v0.0.1'
	// -X 'logrep/internal/core/version.commit=abcd' -X 'logrep/internal/core/version.date=2024-10-14'"
	return BuildInfo{
		Service: "logrep",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String renders the build info on one line
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", b.Service, b.Version, b.Commit, b.Date)
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
