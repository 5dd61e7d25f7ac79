package core

import "fmt"

// Firmware version reported by the get-version command.
const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
	BuildNumber  = 1
)

// VersionString returns the human-readable firmware banner.
func VersionString() string {
	return fmt.Sprintf("busnode v%d.%d.%d build %d", VersionMajor, VersionMinor, VersionPatch, BuildNumber)
}
