package convtex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cg "github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

func indexedWeights(shape tensor.OHWI) Weights {
	w := Weights{Shape: shape, Data: make([]float32, shape.NumElements())}
	for o := range shape.O {
		for y := range shape.H {
			for x := range shape.W {
				for i := range shape.I {
					w.Data[shape.LinearIndex(o, y, x, i)] = float32(o*1000 + y*100 + x*10 + i + 1)
				}
			}
		}
	}
	return w
}

func texel(data []float32, width, x, y int) []float32 {
	at := (y*width + x) * 4
	return data[at : at+4]
}

func TestFilterTexturesSize(t *testing.T) {
	tests := []struct {
		shape         tensor.OHWI
		blockZ        int
		width, height int
	}{
		{tensor.OHWI{O: 5, H: 1, W: 2, I: 6}, 2, 2, 4},
		{tensor.OHWI{O: 5, H: 1, W: 2, I: 6}, 4, 4, 4},
		{tensor.OHWI{O: 16, H: 3, W: 3, I: 3}, 2, 4, 9},
		{tensor.OHWI{O: 36, H: 1, W: 1, I: 8}, 2, 10, 2},
	}
	for _, tt := range tests {
		w, h := FilterTexturesSize(tt.shape, tt.blockZ)
		assert.Equal(t, tt.width, w, "%v/%d", tt.shape, tt.blockZ)
		assert.Equal(t, tt.height, h, "%v/%d", tt.shape, tt.blockZ)
	}
}

func TestRearrangeWeights(t *testing.T) {
	shape := tensor.OHWI{O: 5, H: 1, W: 2, I: 6}
	parts, width, height := RearrangeWeights(indexedWeights(shape), 2)
	require.Equal(t, 2, width)
	require.Equal(t, 4, height)
	for _, p := range parts {
		require.Len(t, p, width*height*4)
	}

	// Texture k at (x, y) holds output channels 4x..4x+3 for input channel
	// s*4+k, with y = (ky*KW + kx)*srcDepth + s.
	assert.Equal(t, []float32{1, 1001, 2001, 3001}, texel(parts[0], width, 0, 0))
	assert.Equal(t, []float32{4, 1004, 2004, 3004}, texel(parts[3], width, 0, 0))
	assert.Equal(t, []float32{4001, 0, 0, 0}, texel(parts[0], width, 1, 0))
	assert.Equal(t, []float32{4016, 0, 0, 0}, texel(parts[1], width, 1, 3))
	assert.Equal(t, []float32{15, 1015, 2015, 3015}, texel(parts[0], width, 0, 3))

	// Input channels past I are zero.
	assert.Equal(t, []float32{0, 0, 0, 0}, texel(parts[2], width, 0, 1))
	assert.Equal(t, []float32{0, 0, 0, 0}, texel(parts[3], width, 1, 3))
}

func TestRearrangeWeights_BlockPadding(t *testing.T) {
	shape := tensor.OHWI{O: 5, H: 1, W: 1, I: 4}
	parts, width, _ := RearrangeWeights(indexedWeights(shape), 4)
	require.Equal(t, 4, width)
	assert.Equal(t, []float32{4001, 0, 0, 0}, texel(parts[0], width, 1, 0))
	assert.Equal(t, []float32{0, 0, 0, 0}, texel(parts[0], width, 2, 0))
	assert.Equal(t, []float32{0, 0, 0, 0}, texel(parts[0], width, 3, 0))
}

type trackedTexture struct {
	released bool
}

func (t *trackedTexture) Kind() gpu.MemoryKind { return gpu.MemoryImage2D }
func (t *trackedTexture) Release()             { t.released = true }
func (t *trackedTexture) Width() int           { return 1 }
func (t *trackedTexture) Height() int          { return 1 }

// flakyContext fails the failAt-th texture creation.
type flakyContext struct {
	failAt  int
	created []*trackedTexture
}

func (c *flakyContext) CreateTexture2D(gpu.TextureDesc, []byte) (gpu.Texture2D, error) {
	if len(c.created)+1 == c.failAt {
		return nil, errors.New("out of device memory")
	}
	tex := &trackedTexture{}
	c.created = append(c.created, tex)
	return tex, nil
}

func TestCreate_AllocationFailure(t *testing.T) {
	def := definition(cg.F32, tensor.TextureArray, tensor.TextureArray, false)
	// Four filter textures then the bias.
	for failAt := 1; failAt <= 5; failAt++ {
		ctx := &flakyContext{failAt: failAt}
		cc := CreationContext{Device: mali, Context: ctx}
		op, err := Create(cc, def, unitAttr(8, 3, 3, 4))
		assert.Nil(t, op)
		var allocErr *gpu.AllocationError
		require.ErrorAs(t, err, &allocErr, "fail at %d", failAt)
		require.Len(t, ctx.created, failAt-1)
		for i, tex := range ctx.created {
			assert.True(t, tex.released, "texture %d leaked when failing at %d", i, failAt)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, mali)
	def := definition(cg.F32, tensor.TextureArray, tensor.TextureArray, false)

	tests := []struct {
		name   string
		mutate func(*Convolution2DAttributes, *gpu.OperationDef, *[]Option)
		target error
	}{
		{"zero stride", func(a *Convolution2DAttributes, _ *gpu.OperationDef, _ *[]Option) { a.Strides.Y = 0 }, nil},
		{"zero dilation", func(a *Convolution2DAttributes, _ *gpu.OperationDef, _ *[]Option) { a.Dilations.X = 0 }, nil},
		{"short weights", func(a *Convolution2DAttributes, _ *gpu.OperationDef, _ *[]Option) { a.Weights.Data = a.Weights.Data[1:] }, nil},
		{"long bias", func(a *Convolution2DAttributes, _ *gpu.OperationDef, _ *[]Option) { a.Bias = make([]float32, 9) }, nil},
		{"unknown precision", func(_ *Convolution2DAttributes, d *gpu.OperationDef, _ *[]Option) { d.Precision = cg.Precision(7) }, gpu.ErrUnsupportedPrecision},
		{"zero block", func(_ *Convolution2DAttributes, _ *gpu.OperationDef, o *[]Option) {
			*o = append(*o, WithBlockSize(tensor.Int3{X: 2, Y: 0, Z: 2}))
		}, gpu.ErrInvalidBlockSize},
		{"zero work group", func(_ *Convolution2DAttributes, _ *gpu.OperationDef, o *[]Option) {
			*o = append(*o, WithWorkGroupSize(tensor.Int3{}))
		}, gpu.ErrNoWorkGroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, d := unitAttr(8, 3, 3, 4), def
			var opts []Option
			tt.mutate(&attr, &d, &opts)
			_, err := Create(f.cc, d, attr, opts...)
			var cfgErr *gpu.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	t.Run("no context", func(t *testing.T) {
		cc := f.cc
		cc.Context = nil
		_, err := Create(cc, def, unitAttr(8, 3, 3, 4))
		var cfgErr *gpu.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestOutputShape(t *testing.T) {
	tests := []struct {
		name string
		src  tensor.BHWC
		attr func(*Convolution2DAttributes)
		want tensor.BHWC
	}{
		{"same", tensor.BHWC{B: 2, H: 8, W: 8, C: 3}, func(a *Convolution2DAttributes) {
			a.Padding = Padding2D{Prepended: tensor.Int2{X: 1, Y: 1}, Appended: tensor.Int2{X: 1, Y: 1}}
		}, tensor.BHWC{B: 2, H: 8, W: 8, C: 16}},
		{"valid", tensor.BHWC{B: 1, H: 8, W: 10, C: 3}, func(*Convolution2DAttributes) {}, tensor.BHWC{B: 1, H: 6, W: 8, C: 16}},
		{"strided", tensor.BHWC{B: 1, H: 9, W: 9, C: 3}, func(a *Convolution2DAttributes) {
			a.Strides = tensor.Int2{X: 2, Y: 3}
		}, tensor.BHWC{B: 1, H: 3, W: 4, C: 16}},
		{"dilated", tensor.BHWC{B: 1, H: 9, W: 9, C: 3}, func(a *Convolution2DAttributes) {
			a.Dilations = tensor.Int2{X: 2, Y: 4}
		}, tensor.BHWC{B: 1, H: 1, W: 5, C: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := unitAttr(16, 3, 3, 3)
			tt.attr(&attr)
			assert.Equal(t, tt.want, OutputShape(tt.src, attr))
		})
	}
}
