// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the shape and storage descriptors used to describe
// convolution inputs, outputs and weights.
//
// # Overview
//
// Activations are BHWC and weights OHWI. On the device, channels are grouped
// into 4-channel slices and batch is folded into width, so a BHWC tensor is
// addressed as (x*B + b, y, slice). The storage type selects the image or
// buffer object that holds those slices:
//   - Buffer: plain linear memory
//   - ImageBuffer: linear memory read through the texture path
//   - Texture2D: slices stacked along the height
//   - Texture3D and TextureArray: one layer per slice
//
// # Basic Usage
//
//	import "github.com/born-ml/convtex/tensor"
//
//	func main() {
//	    src := tensor.BHWC{B: 1, H: 224, W: 224, C: 3}
//	    desc := tensor.Descriptor{Storage: tensor.TextureArray, DataType: tensor.Float16}
//	    host, _ := tensor.NewHost(src)
//	    _ = desc
//	    _ = host
//	}
package tensor
