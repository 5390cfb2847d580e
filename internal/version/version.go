package version

import "runtime/debug"

// Version is overridden at build time with -ldflags "-X".
var Version = "unknown"

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	mainVersion := info.Main.Version
	if mainVersion == "" || mainVersion == "(devel)" {
		return
	}
	Version = mainVersion
}
