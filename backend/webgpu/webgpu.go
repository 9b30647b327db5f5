// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu identifies the local GPU through WebGPU.
//
// The adapter's vendor and device strings select the same kernel heuristics
// a driver query would. Probing is supported on Windows; elsewhere Probe
// returns ErrUnavailable.
//
// Example:
//
//	import "github.com/born-ml/convtex/backend/webgpu"
//
//	func main() {
//	    adapter, err := webgpu.Probe()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    info := adapter.DeviceInfo()
//	    fmt.Println(info.Name, info.Vendor)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/convtex/internal/backend/webgpu"
)

// Adapter is the identity a WebGPU adapter reports.
type Adapter = internalwebgpu.Adapter

// ErrUnavailable is returned when no WebGPU adapter can be reached.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// Probe requests the high-performance adapter and returns its identity.
func Probe() (Adapter, error) {
	return internalwebgpu.Probe()
}
