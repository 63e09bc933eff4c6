// Package buildinfo carries build-time metadata injected with
//
//	-ldflags "-X github.com/fieldscan/fieldscan/internal/buildinfo.Version=v1.2.0
//	          -X github.com/fieldscan/fieldscan/internal/buildinfo.BuildDate=2026-07-01"
package buildinfo

import "runtime/debug"

// Set at link time.
var (
	Version   = ""
	BuildDate = ""
)

const unknown = "unknown"

// Context is a snapshot of the build metadata.
type Context struct {
	Version   string
	BuildDate string
}

// Get returns the build metadata. Without link-time values the module version
// recorded by the Go toolchain is used, if any.
func Get() Context {
	c := Context{Version: Version, BuildDate: BuildDate}
	if c.Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			c.Version = info.Main.Version
		}
	}
	return c
}

// GetVersion returns the version or "unknown".
func (c Context) GetVersion() string {
	if c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c Context) GetBuildDate() string {
	if c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String formats the metadata for --version output.
func (c Context) String() string {
	return c.GetVersion() + " (built " + c.GetBuildDate() + ")"
}
