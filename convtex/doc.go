// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package convtex provides a 2D convolution whose filters live in four RGBA
// textures.
//
// # Overview
//
// An operation is created once for a fixed set of convolution parameters and
// then dispatched many times against runtime tensors:
//   - Create validates the parameters and uploads the rearranged filters
//   - Compile generates a kernel specialised for the device and caches it
//   - Tune picks a work group size
//   - AddToQueue binds the current tensors and dispatches the kernel
//
// Generated kernels tile the output in blocks of X by Y positions and Z
// output slices, fold batch into width when the definition supports batch,
// and may fuse elementwise operations such as ReLU into their epilogue.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/convtex/backend/ref"
//	    "github.com/born-ml/convtex/convtex"
//	    "github.com/born-ml/convtex/tensor"
//	)
//
//	func main() {
//	    info := convtex.ParseDeviceInfo("QUALCOMM", "Adreno (TM) 630")
//	    dev := ref.NewDevice(info)
//	    kernels, _ := convtex.NewCache(dev, 0)
//	    cc := convtex.CreationContext{Device: info, Context: dev, Cache: kernels}
//
//	    desc := tensor.Descriptor{Storage: tensor.TextureArray, DataType: tensor.Float32}
//	    def := convtex.OperationDef{Precision: convtex.F32, Src: []tensor.Descriptor{desc}, Dst: []tensor.Descriptor{desc}}
//	    op, err := convtex.Create(cc, def, attr, convtex.WithLinked(convtex.ReLU{}))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer op.Release()
//	    if err := op.Compile(cc); err != nil {
//	        log.Fatal(err)
//	    }
//	    op.SetSrc(src)
//	    op.SetDst(dst)
//	    if err := op.AddToQueue(dev); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Errors
//
// Failures are reported as *ConfigurationError, *AllocationError,
// *CompileError, *BindError, *DispatchError or *TuneError, each wrapping one
// of the sentinel errors where it applies.
package convtex
