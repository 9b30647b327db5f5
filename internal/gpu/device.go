package gpu

import (
	"strings"
	"unicode"

	"github.com/born-ml/convtex/internal/tensor"
)

// Vendor identifies the GPU vendor family.
type Vendor int

// Known vendors.
const (
	VendorUnknown Vendor = iota
	VendorQualcomm
	VendorARM
	VendorNvidia
	VendorAMD
	VendorIntel
	VendorApple
	VendorImagination
)

// String returns the vendor name.
func (v Vendor) String() string {
	switch v {
	case VendorQualcomm:
		return "qualcomm"
	case VendorARM:
		return "arm"
	case VendorNvidia:
		return "nvidia"
	case VendorAMD:
		return "amd"
	case VendorIntel:
		return "intel"
	case VendorApple:
		return "apple"
	case VendorImagination:
		return "imagination"
	default:
		return "unknown"
	}
}

// Default work group limits used when a device does not report its own.
var (
	DefaultMaxWorkGroupSize        = tensor.Int3{X: 256, Y: 256, Z: 64}
	DefaultMaxWorkGroupInvocations = 256
)

// DeviceInfo is the capability set of a compute device.
type DeviceInfo struct {
	Name   string
	Vendor Vendor
	// AdrenoVersion is the numeric Adreno model (e.g. 630), 0 if unknown.
	AdrenoVersion           int
	MaxWorkGroupSize        tensor.Int3
	MaxWorkGroupInvocations int
}

// IsAdreno reports whether the device is a Qualcomm Adreno GPU.
func (d DeviceInfo) IsAdreno() bool {
	return d.Vendor == VendorQualcomm
}

// IsAdreno3xx reports whether the device is an Adreno 3xx.
func (d DeviceInfo) IsAdreno3xx() bool {
	return d.IsAdreno() && d.AdrenoVersion >= 300 && d.AdrenoVersion < 400
}

// IsAdreno4xx reports whether the device is an Adreno 4xx.
func (d DeviceInfo) IsAdreno4xx() bool {
	return d.IsAdreno() && d.AdrenoVersion >= 400 && d.AdrenoVersion < 500
}

// WorkGroupLimits returns the per-axis and total limits, falling back to defaults.
func (d DeviceInfo) WorkGroupLimits() (tensor.Int3, int) {
	size := d.MaxWorkGroupSize
	if !size.Positive() {
		size = DefaultMaxWorkGroupSize
	}
	total := d.MaxWorkGroupInvocations
	if total <= 0 {
		total = DefaultMaxWorkGroupInvocations
	}
	return size, total
}

// ParseDeviceInfo derives a capability set from the vendor and renderer
// strings a driver reports (e.g. "QUALCOMM", "Adreno (TM) 630").
func ParseDeviceInfo(vendor, renderer string) DeviceInfo {
	v := strings.ToLower(vendor)
	r := strings.ToLower(renderer)
	info := DeviceInfo{
		Name:                    renderer,
		MaxWorkGroupSize:        DefaultMaxWorkGroupSize,
		MaxWorkGroupInvocations: DefaultMaxWorkGroupInvocations,
	}
	switch {
	case strings.Contains(v, "qualcomm") || strings.Contains(r, "adreno"):
		info.Vendor = VendorQualcomm
		info.AdrenoVersion = numberAfter(r, "adreno")
	case strings.Contains(v, "arm") || strings.Contains(r, "mali"):
		info.Vendor = VendorARM
	case strings.Contains(v, "nvidia") || strings.Contains(r, "geforce"):
		info.Vendor = VendorNvidia
	case strings.Contains(v, "amd") || strings.Contains(v, "advanced micro") || strings.Contains(r, "radeon"):
		info.Vendor = VendorAMD
	case strings.Contains(v, "intel"):
		info.Vendor = VendorIntel
	case strings.Contains(v, "apple"):
		info.Vendor = VendorApple
	case strings.Contains(v, "imagination") || strings.Contains(r, "powervr"):
		info.Vendor = VendorImagination
	}
	return info
}

// numberAfter returns the first decimal number that follows marker in s.
func numberAfter(s, marker string) int {
	i := strings.Index(s, marker)
	if i < 0 {
		return 0
	}
	rest := s[i+len(marker):]
	start := strings.IndexFunc(rest, unicode.IsDigit)
	if start < 0 {
		return 0
	}
	n := 0
	for _, c := range rest[start:] {
		if !unicode.IsDigit(c) {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
