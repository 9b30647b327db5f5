// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ref provides the reference compute device.
//
// The reference device stores textures and buffers in host memory, compiles
// generated kernels by keeping their program, and dispatches them by
// interpreting that program for every work item. It implements the device
// context, compiler and executor used by convtex, so operations can be
// created, compiled, tuned and run without a GPU.
//
// Example:
//
//	import (
//	    "github.com/born-ml/convtex/backend/ref"
//	    "github.com/born-ml/convtex/convtex"
//	)
//
//	func main() {
//	    info := convtex.ParseDeviceInfo("QUALCOMM", "Adreno (TM) 630")
//	    dev := ref.NewDevice(info)
//	    kernels, _ := convtex.NewCache(dev, 0)
//	    cc := convtex.CreationContext{Device: info, Context: dev, Cache: kernels}
//	    _ = cc
//	}
package ref

import (
	"time"

	internalref "github.com/born-ml/convtex/internal/backend/ref"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/logger"
	"github.com/born-ml/convtex/internal/parallel"
)

// Device is the reference device. It is safe for concurrent use.
type Device = internalref.Device

// Tensor is a device tensor created by a Device.
type Tensor = internalref.Tensor

// Kernel is a program compiled by a Device.
type Kernel = internalref.Kernel

// Option configures a Device.
type Option = internalref.Option

// NewDevice returns a reference device reporting the given capabilities.
func NewDevice(info gpu.DeviceInfo, opts ...Option) *Device {
	return internalref.NewDevice(info, opts...)
}

// WithParallel sets how work groups are spread over goroutines.
func WithParallel(cfg parallel.Config) Option {
	return internalref.WithParallel(cfg)
}

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return internalref.WithLogger(l)
}

// WithGroupOverhead sets the fixed cost per work group Measure reports.
func WithGroupOverhead(d time.Duration) Option {
	return internalref.WithGroupOverhead(d)
}
