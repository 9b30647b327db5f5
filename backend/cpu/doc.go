// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides host implementations used to check device results.
//
// # Overview
//
// Conv2D is a direct, pure Go 2D convolution:
//   - BHWC input and output, OHWI weights
//   - Im2col gathering with zero padding outside the input
//   - Strides, dilations and a bias shorter than the output channels
//   - Row-parallel execution through a Config
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/convtex/backend/cpu"
//	    "github.com/born-ml/convtex/tensor"
//	)
//
//	func main() {
//	    in, _ := tensor.NewHost(tensor.BHWC{B: 1, H: 8, W: 8, C: 4})
//	    out, _ := tensor.NewHost(tensor.BHWC{B: 1, H: 6, W: 6, C: 8})
//	    w := make([]float32, 8*3*3*4)
//	    err := cpu.Conv2D(out, in, tensor.OHWI{O: 8, H: 3, W: 3, I: 4}, w, nil,
//	        cpu.Conv2DParams{Stride: tensor.Int2{X: 1, Y: 1}, Dilation: tensor.Int2{X: 1, Y: 1}},
//	        cpu.DefaultConfig())
//	    _ = err
//	}
package cpu
