// Package cpu holds direct host implementations used to check device output.
package cpu

import (
	"fmt"

	"github.com/born-ml/convtex/internal/parallel"
	"github.com/born-ml/convtex/internal/tensor"
)

// Conv2DParams are the geometry of a 2D convolution. Int2 values are
// (width, height); Padding is the prepended padding.
type Conv2DParams struct {
	Stride   tensor.Int2
	Dilation tensor.Int2
	Padding  tensor.Int2
}

// Conv2D convolves a BHWC input with OHWI weights into out using im2col.
//
// Each output position gathers its receptive field (zero outside the input)
// into one row of a column buffer; the result is then the product of that
// buffer with the [O, KH*KW*I] weight matrix, plus bias. bias may be shorter
// than O; missing entries are zero.
func Conv2D(out, input *tensor.Host, wShape tensor.OHWI, weights, bias []float32, p Conv2DParams, cfg parallel.Config) error {
	in := input.Shape
	if wShape.I != in.C {
		return fmt.Errorf("conv2d: input channels %d != weight channels %d", in.C, wShape.I)
	}
	if len(weights) != wShape.NumElements() {
		return fmt.Errorf("conv2d: have %d weights for shape %v", len(weights), wShape)
	}
	if p.Stride.X < 1 || p.Stride.Y < 1 || p.Dilation.X < 1 || p.Dilation.Y < 1 {
		return fmt.Errorf("conv2d: invalid stride %v or dilation %v", p.Stride, p.Dilation)
	}
	if out.Shape.B != in.B || out.Shape.C != wShape.O || out.Shape.H <= 0 || out.Shape.W <= 0 {
		return fmt.Errorf("conv2d: output shape %+v does not match input %+v and weights %v", out.Shape, in, wShape)
	}

	colWidth := wShape.H * wShape.W * wShape.I
	// One column buffer per (batch, row); rows are independent.
	parallel.ForBatch(in.B, out.Shape.H, func(b, oy int) {
		col := make([]float32, out.Shape.W*colWidth)
		im2col(col, input, b, oy, out.Shape.W, wShape, p)
		for ox := range out.Shape.W {
			row := col[ox*colWidth : (ox+1)*colWidth]
			for o := range wShape.O {
				kernel := weights[o*colWidth : (o+1)*colWidth]
				var sum float32
				for k, v := range row {
					sum += kernel[k] * v
				}
				if o < len(bias) {
					sum += bias[o]
				}
				out.Set(b, oy, ox, o, sum)
			}
		}
	}, cfg)
	return nil
}

// im2col fills col with the receptive fields of output row oy of batch b.
// Column order within a row is (ky, kx, i), matching OHWI weights.
func im2col(col []float32, input *tensor.Host, b, oy, outW int, w tensor.OHWI, p Conv2DParams) {
	in := input.Shape
	idx := 0
	for ox := range outW {
		yStart := oy*p.Stride.Y - p.Padding.Y
		xStart := ox*p.Stride.X - p.Padding.X
		for ky := range w.H {
			y := yStart + ky*p.Dilation.Y
			for kx := range w.W {
				x := xStart + kx*p.Dilation.X
				inside := y >= 0 && y < in.H && x >= 0 && x < in.W
				for c := range w.I {
					if inside {
						col[idx] = input.At(b, y, x, c)
					} else {
						col[idx] = 0
					}
					idx++
				}
			}
		}
	}
}
