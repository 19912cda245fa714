package afcore

import "fmt"

// ModuleVersion is this module's semantic version.
const ModuleVersion = "1.0.0"

// WireFormatVersion is the packed-id/opcode wire format version
// (spec.md §3/§6); bumped only when the wire encoding changes, never for
// an implementation-only change.
const WireFormatVersion = 1

// VersionInfo answers GET_VERSION_INFO (spec.md §4.10).
type VersionInfo struct {
	Module       string
	WireFormat   int
	ComponentAPI int
}

// componentAPIVersion tracks comp_create/comp_process/comp_get_status's
// shape; bumped whenever a ProcessFlag or StatusCode is added.
const componentAPIVersion = 1

// GetVersionInfo implements GET_VERSION_INFO.
func (d *Device) GetVersionInfo() VersionInfo {
	return VersionInfo{
		Module:       ModuleVersion,
		WireFormat:   WireFormatVersion,
		ComponentAPI: componentAPIVersion,
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("afcore %s (wire v%d, component api v%d)", v.Module, v.WireFormat, v.ComponentAPI)
}
