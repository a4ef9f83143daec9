/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

// Version information set by build flags
var (
	// Version is the semantic version of docmapper
	Version = "0.1.0"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build date (set by build flags)
	BuildDate = "unknown"
)

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}

// String renders the version the way the CLI prints it.
func (v VersionInfo) String() string {
	return "docmapper " + v.Version + " (" + v.GitCommit + ", " + v.BuildDate + ")"
}
