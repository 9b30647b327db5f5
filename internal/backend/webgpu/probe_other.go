//go:build !windows

package webgpu

// IsAvailable reports false: the WebGPU bindings are only built for windows.
func IsAvailable() bool { return false }

// Probe always fails on this platform.
func Probe() (Adapter, error) {
	return Adapter{}, ErrUnavailable
}
