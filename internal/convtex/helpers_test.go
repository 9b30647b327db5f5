package convtex

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/convtex/internal/backend/cpu"
	"github.com/born-ml/convtex/internal/backend/ref"
	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/gpu/cache"
	"github.com/born-ml/convtex/internal/parallel"
	"github.com/born-ml/convtex/internal/tensor"
)

var (
	adreno330 = gpu.ParseDeviceInfo("QUALCOMM", "Adreno (TM) 330")
	adreno430 = gpu.ParseDeviceInfo("QUALCOMM", "Adreno (TM) 430")
	adreno630 = gpu.ParseDeviceInfo("QUALCOMM", "Adreno (TM) 630")
	mali      = gpu.ParseDeviceInfo("ARM", "Mali-G76")
)

type fixture struct {
	dev *ref.Device
	cc  CreationContext
}

func newFixture(t *testing.T, info gpu.DeviceInfo) fixture {
	t.Helper()
	dev := ref.NewDevice(info, ref.WithParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}))
	c, err := cache.New(dev, 0)
	require.NoError(t, err)
	return fixture{dev: dev, cc: CreationContext{Device: info, Context: dev, Cache: c}}
}

func definition(p codegen.Precision, src, dst tensor.StorageType, batch bool) gpu.OperationDef {
	dt := tensor.Float32
	if p != codegen.F32 {
		dt = tensor.Float16
	}
	return gpu.OperationDef{
		Precision:    p,
		BatchSupport: batch,
		Src:          []tensor.Descriptor{{Storage: src, DataType: dt, Layout: tensor.LayoutBHWC}},
		Dst:          []tensor.Descriptor{{Storage: dst, DataType: dt, Layout: tensor.LayoutBHWC}},
	}
}

func unitAttr(o, kh, kw, i int) Convolution2DAttributes {
	return Convolution2DAttributes{
		Weights:   Weights{Shape: tensor.OHWI{O: o, H: kh, W: kw, I: i}, Data: make([]float32, o*kh*kw*i)},
		Bias:      make([]float32, o),
		Strides:   tensor.Int2{X: 1, Y: 1},
		Dilations: tensor.Int2{X: 1, Y: 1},
	}
}

func randomAttr(rng *rand.Rand, o, kh, kw, i int) Convolution2DAttributes {
	attr := unitAttr(o, kh, kw, i)
	for k := range attr.Weights.Data {
		attr.Weights.Data[k] = rng.Float32()*2 - 1
	}
	for k := range attr.Bias {
		attr.Bias[k] = rng.Float32() - 0.5
	}
	return attr
}

func randomHost(t *testing.T, rng *rand.Rand, shape tensor.BHWC) *tensor.Host {
	t.Helper()
	h, err := tensor.NewHost(shape)
	require.NoError(t, err)
	for k := range h.Data {
		h.Data[k] = rng.Float32()*2 - 1
	}
	return h
}

// runConv creates, compiles and dispatches one convolution on the fixture
// device and returns the downloaded result.
func runConv(t *testing.T, f fixture, def gpu.OperationDef, attr Convolution2DAttributes, input *tensor.Host, opts ...Option) (*tensor.Host, *ConvTexture) {
	t.Helper()
	op, err := Create(f.cc, def, attr, opts...)
	require.NoError(t, err)
	t.Cleanup(op.Release)
	require.NoError(t, op.Compile(f.cc))

	src, err := f.dev.CreateTensor(input.Shape, def.Src[0])
	require.NoError(t, err)
	require.NoError(t, f.dev.Upload(src, input))
	dst, err := f.dev.CreateTensor(OutputShape(input.Shape, attr), def.Dst[0])
	require.NoError(t, err)

	op.SetSrc(src)
	op.SetDst(dst)
	require.NoError(t, op.AddToQueue(f.dev))

	out, err := f.dev.Download(dst)
	require.NoError(t, err)
	return out, op
}

// oracle computes the expected result on the host.
func oracle(t *testing.T, input *tensor.Host, attr Convolution2DAttributes) *tensor.Host {
	t.Helper()
	out, err := tensor.NewHost(OutputShape(input.Shape, attr))
	require.NoError(t, err)
	err = cpu.Conv2D(out, input, attr.Weights.Shape, attr.Weights.Data, attr.Bias, cpu.Conv2DParams{
		Stride:   attr.Strides,
		Dilation: attr.Dilations,
		Padding:  attr.Padding.Prepended,
	}, parallel.Sequential())
	require.NoError(t, err)
	return out
}

// requireClose fails unless every element is within tol relative error
// (absolute below magnitude 1).
func requireClose(t *testing.T, want, got *tensor.Host, tol float64) {
	t.Helper()
	require.Equal(t, want.Shape, got.Shape)
	for k := range want.Data {
		w, g := float64(want.Data[k]), float64(got.Data[k])
		if math.Abs(w-g) > tol*math.Max(1, math.Abs(w)) {
			require.Failf(t, "mismatch", "element %d: want %v, got %v (tol %g)", k, w, g, tol)
		}
	}
}
