package convtex

import (
	"fmt"

	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// Weights is a host OHWI filter tensor.
type Weights struct {
	Shape tensor.OHWI
	Data  []float32
}

// Validate checks that the data covers the shape.
func (w Weights) Validate() error {
	if err := w.Shape.Validate(); err != nil {
		return err
	}
	if len(w.Data) != w.Shape.NumElements() {
		return fmt.Errorf("weights: have %d values for shape %v", len(w.Data), w.Shape)
	}
	return nil
}

// FilterTexturesSize returns the width and height of each of the four filter
// textures for weights of the given shape and output block depth.
func FilterTexturesSize(shape tensor.OHWI, blockZ int) (width, height int) {
	dstDepth := tensor.AlignByN(tensor.DivideRoundUp(shape.O, 4), blockZ)
	srcDepth := tensor.DivideRoundUp(shape.I, 4)
	return dstDepth, srcDepth * shape.H * shape.W
}

// RearrangeWeights splits w into four RGBA textures laid out row-major, one
// per input channel within a slice. Texel (x, y) of texture k holds the
// weights of output channels 4x..4x+3 for input channel s*4+k at filter
// offset y = (ky*KW + kx)*srcDepth + s. Missing channels are zero.
func RearrangeWeights(w Weights, blockZ int) ([4][]float32, int, int) {
	dstDepth := tensor.AlignByN(tensor.DivideRoundUp(w.Shape.O, 4), blockZ)
	srcDepth := tensor.DivideRoundUp(w.Shape.I, 4)
	width, height := FilterTexturesSize(w.Shape, blockZ)

	var out [4][]float32
	for k := range out {
		out[k] = make([]float32, width*height*4)
	}
	for d := range dstDepth / blockZ {
		for ky := range w.Shape.H {
			for kx := range w.Shape.W {
				for s := range srcDepth {
					for subD := range blockZ {
						xCoord := d*blockZ + subD
						yCoord := (ky*w.Shape.W+kx)*srcDepth + s
						texel := (yCoord*width + xCoord) * 4
						for j := range 4 {
							sCh := s*4 + j
							for i := range 4 {
								dCh := xCoord*4 + i
								if dCh < w.Shape.O && sCh < w.Shape.I {
									out[j][texel+i] = w.Data[w.Shape.LinearIndex(dCh, ky, kx, sCh)]
								}
							}
						}
					}
				}
			}
		}
	}
	return out, width, height
}

// uploadWeights rearranges and uploads the four filter textures. On failure
// every texture created so far is released.
func uploadWeights(ctx gpu.Context, w Weights, blockZ int, dt tensor.DataType) ([4]gpu.Texture2D, error) {
	var textures [4]gpu.Texture2D
	if err := w.Validate(); err != nil {
		return textures, &gpu.AllocationError{Resource: "weights", Err: err}
	}
	parts, width, height := RearrangeWeights(w, blockZ)
	for k, part := range parts {
		data, err := tensor.Encode(dt, part)
		if err == nil {
			textures[k], err = ctx.CreateTexture2D(gpu.TextureDesc{DataType: dt, Width: width, Height: height}, data)
		}
		if err != nil {
			for _, t := range textures[:k] {
				t.Release()
			}
			return [4]gpu.Texture2D{}, &gpu.AllocationError{Resource: filterNames[k], Err: err}
		}
	}
	return textures, nil
}
