// Package webgpu probes the system WebGPU adapter and reports it as a
// compute device capability set.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"errors"
	"strings"

	"github.com/born-ml/convtex/internal/gpu"
)

// ErrUnavailable is returned when no WebGPU adapter can be reached.
var ErrUnavailable = errors.New("webgpu: not available")

// Adapter is the identity an adapter reports.
type Adapter struct {
	Vendor       string
	Device       string
	Description  string
	Architecture string
}

// DeviceInfo maps the adapter identity to a capability set. Drivers fill
// Device and Description inconsistently, so whichever names a known GPU
// family wins.
func (a Adapter) DeviceInfo() gpu.DeviceInfo {
	renderer := a.Device
	if renderer == "" || (!knownRenderer(renderer) && knownRenderer(a.Description)) {
		renderer = a.Description
	}
	info := gpu.ParseDeviceInfo(a.Vendor, renderer)
	if info.Name == "" {
		info.Name = strings.TrimSpace(a.Vendor + " " + a.Architecture)
	}
	return info
}

func knownRenderer(s string) bool {
	s = strings.ToLower(s)
	for _, family := range []string{"adreno", "mali", "geforce", "radeon", "powervr"} {
		if strings.Contains(s, family) {
			return true
		}
	}
	return false
}
