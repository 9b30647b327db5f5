// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/convtex/internal/backend/cpu"
	"github.com/born-ml/convtex/internal/parallel"
	"github.com/born-ml/convtex/tensor"
)

// Conv2DParams are the geometry of a 2D convolution. Int2 values are
// (width, height); Padding is the prepended padding.
type Conv2DParams = internalcpu.Conv2DParams

// Config controls parallel execution.
type Config = parallel.Config

// DefaultConfig returns a Config using every CPU.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// Sequential returns a Config that runs on the calling goroutine.
func Sequential() Config {
	return parallel.Sequential()
}

// Conv2D convolves a BHWC input with OHWI weights into out.
//
// bias may be shorter than the output channel count; missing entries are
// zero.
func Conv2D(out, input *tensor.Host, wShape tensor.OHWI, weights, bias []float32, p Conv2DParams, cfg Config) error {
	return internalcpu.Conv2D(out, input, wShape, weights, bias, p, cfg)
}
