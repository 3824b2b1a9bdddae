// Package version reports the build version shared by rpctl and rpctld.
package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Set with -ldflags "-X github.com/remoteplay/rpctl/internal/version.version=..."
var (
	version = "dev"
	commit  = ""
)

// String returns the build version for the current binary.
func String() string {
	return version
}

// Info describes the running build.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Get returns the build description.
func Get() Info {
	return Info{
		Version: FormatVersion(version),
		Commit:  commit,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// gitDescribeSuffix matches the trailing "-N-gHASH" added by git describe.
var gitDescribeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

func normalizeVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	return gitDescribeSuffix.ReplaceAllString(v, "")
}

// FormatVersion ensures a "v" prefix on release versions. "dev" and empty
// strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckVersionMismatch compares this build with the version a relay daemon
// reports. It returns a warning when they differ and "" when they match or
// either side is a development build.
func CheckVersionMismatch(relayVersion string) string {
	client := version
	if relayVersion == "" || client == "" || client == "dev" || relayVersion == "dev" {
		return ""
	}
	if normalizeVersion(client) == normalizeVersion(relayVersion) {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: rpctl %s talking to rpctld %s: version mismatch, restart the relay or reinstall",
		FormatVersion(client), FormatVersion(relayVersion),
	)
}
