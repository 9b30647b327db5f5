package convtex

import (
	"fmt"

	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// Padding2D is the zero padding added before and after the spatial axes.
type Padding2D struct {
	Prepended tensor.Int2
	Appended  tensor.Int2
}

// Convolution2DAttributes are the static parameters of a 2D convolution.
// Int2 values are (width, height).
type Convolution2DAttributes struct {
	Weights   Weights
	Bias      []float32
	Strides   tensor.Int2
	Dilations tensor.Int2
	Padding   Padding2D
}

// Validate checks the attributes for values no kernel can honour.
func (a Convolution2DAttributes) Validate() error {
	if err := a.Weights.Validate(); err != nil {
		return &gpu.ConfigurationError{Field: "weights", Details: err.Error()}
	}
	if a.Strides.X < 1 || a.Strides.Y < 1 {
		return &gpu.ConfigurationError{Field: "strides", Details: a.Strides.String()}
	}
	if a.Dilations.X < 1 || a.Dilations.Y < 1 {
		return &gpu.ConfigurationError{Field: "dilations", Details: a.Dilations.String()}
	}
	if len(a.Bias) > a.Weights.Shape.O {
		return &gpu.ConfigurationError{
			Field:   "bias",
			Details: fmt.Sprintf("%d values for %d output channels", len(a.Bias), a.Weights.Shape.O),
		}
	}
	return nil
}

// OutputShape returns the destination shape of convolving src with attr.
func OutputShape(src tensor.BHWC, attr Convolution2DAttributes) tensor.BHWC {
	out := func(in, pre, app, k, d, s int) int {
		dilated := (k-1)*d + 1
		return (in+pre+app-dilated)/s + 1
	}
	return tensor.BHWC{
		B: src.B,
		H: out(src.H, attr.Padding.Prepended.Y, attr.Padding.Appended.Y, attr.Weights.Shape.H, attr.Dilations.Y, attr.Strides.Y),
		W: out(src.W, attr.Padding.Prepended.X, attr.Padding.Appended.X, attr.Weights.Shape.W, attr.Dilations.X, attr.Strides.X),
		C: attr.Weights.Shape.O,
	}
}

// Create builds a ConvTexture for def and attr and uploads its filters and
// bias through cc.Context. The operation still needs Compile before use.
func Create(cc CreationContext, def gpu.OperationDef, attr Convolution2DAttributes, opts ...Option) (*ConvTexture, error) {
	if err := attr.Validate(); err != nil {
		return nil, err
	}
	if cc.Context == nil {
		return nil, &gpu.ConfigurationError{Field: "context", Details: "no device context"}
	}
	dt, err := def.DataType()
	if err != nil {
		return nil, err
	}
	c := newConvTexture(def, attr, opts...)
	if !c.blockSize.Positive() {
		return nil, &gpu.ConfigurationError{Field: "block_size", Details: c.blockSize.String(), Err: gpu.ErrInvalidBlockSize}
	}
	if !c.workGroup.Positive() {
		return nil, &gpu.ConfigurationError{Field: "work_group_size", Details: c.workGroup.String(), Err: gpu.ErrNoWorkGroup}
	}

	c.weights, err = uploadWeights(cc.Context, attr.Weights, c.blockSize.Z, dt)
	if err != nil {
		return nil, err
	}
	c.biases, err = gpu.CreateLinearStorage(cc.Context, gpu.LinearStorageCreateInfo{
		DataType:    dt,
		AlignedSize: attr.Weights.Shape.O,
	}, attr.Bias)
	if err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}
