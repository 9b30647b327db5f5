// Package convtex implements a 2D convolution whose filters live in four RGBA
// textures. It generates a kernel specialised for the static convolution
// parameters, compiles it through a cache, and binds and dispatches it against
// runtime tensors.
package convtex

import (
	"errors"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/logger"
	"github.com/born-ml/convtex/internal/tensor"
)

// Defaults for the tile and work group shapes.
var (
	DefaultBlockSize     = tensor.Int3{X: 2, Y: 2, Z: 2}
	DefaultWorkGroupSize = tensor.Int3{X: 4, Y: 4, Z: 2}
)

// CreationContext bundles the device-side collaborators an operation is
// created and compiled against.
type CreationContext struct {
	Device  gpu.DeviceInfo
	Context gpu.Context
	Cache   gpu.CompileCache
}

// Option configures a ConvTexture.
type Option func(*ConvTexture)

// WithBlockSize sets the output tile each work item computes.
func WithBlockSize(b tensor.Int3) Option {
	return func(c *ConvTexture) { c.blockSize = b }
}

// WithWorkGroupSize sets the initial work group, used until Tune picks one.
func WithWorkGroupSize(wg tensor.Int3) Option {
	return func(c *ConvTexture) { c.workGroup = wg }
}

// WithLinked fuses elementwise operations into the kernel epilogue.
func WithLinked(ops ...gpu.LinkedOperation) Option {
	return func(c *ConvTexture) { c.linked = append(c.linked, ops...) }
}

// WithLogger sets the logger for compile and tune decisions.
func WithLogger(l logger.Logger) Option {
	return func(c *ConvTexture) { c.log = l }
}

// ConvTexture is a compiled-once, dispatched-many 2D convolution. It is not
// safe for concurrent use.
type ConvTexture struct {
	def        gpu.OperationDef
	kernelSize tensor.Int2
	stride     tensor.Int2
	// padding is the offset of the first tap, the negated prepended padding.
	padding   tensor.Int2
	dilation  tensor.Int2
	blockSize tensor.Int3
	workGroup tensor.Int3
	linked    []gpu.LinkedOperation
	log       logger.Logger

	weights [4]gpu.Texture2D
	biases  *gpu.LinearStorage

	program *codegen.Program
	source  string
	kernel  gpu.Kernel
	// cache handed out kernel and takes it back on recompile and Release.
	cache gpu.CompileCache

	src gpu.Tensor
	dst gpu.Tensor
}

func newConvTexture(def gpu.OperationDef, attr Convolution2DAttributes, opts ...Option) *ConvTexture {
	c := &ConvTexture{
		def:        def,
		kernelSize: tensor.Int2{X: attr.Weights.Shape.W, Y: attr.Weights.Shape.H},
		stride:     attr.Strides,
		padding:    tensor.Int2{X: -attr.Padding.Prepended.X, Y: -attr.Padding.Prepended.Y},
		dilation:   attr.Dilations,
		blockSize:  DefaultBlockSize,
		workGroup:  DefaultWorkGroupSize,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("op", "conv_texture")
	return c
}

func (c *ConvTexture) is1x1() bool {
	return c.kernelSize.X == 1 && c.kernelSize.Y == 1
}

// Compile generates the kernel for cc.Device and obtains it from cc.Cache.
// Any previously compiled kernel is dropped first, so after a failed compile
// the operation reports ErrNotCompiled until Compile succeeds.
func (c *ConvTexture) Compile(cc CreationContext) error {
	c.dropKernel()
	if cc.Cache == nil {
		return &gpu.ConfigurationError{Field: "cache", Details: "no compile cache"}
	}
	is1x1 := c.is1x1()
	fast := UseAdreno4xxOptimization(cc.Device, c.def, c.stride, c.padding)
	prog, err := GenerateConvCode(GeneratorConfig{
		Definition: c.def,
		BlockSize:  c.blockSize,
		Is1x1:      is1x1,
		FastPath:   fast,
		Stride:     c.stride,
		Device:     cc.Device,
		Linked:     c.linked,
	})
	if err != nil {
		return err
	}
	source, err := codegen.PrintCL(prog)
	if err != nil {
		return &gpu.CompileError{Entry: prog.Entry, Err: err}
	}

	simd, err := UseFP16SIMD(cc.Device, c.def.Precision, is1x1)
	if err != nil {
		return err
	}
	var options []gpu.CompilerOption
	if simd {
		options = append(options, gpu.AdrenoFullSIMDLine)
	}

	kernel, err := cc.Cache.GetOrCreate(gpu.CompileRequest{
		Source:     source,
		EntryPoint: prog.Entry,
		Options:    options,
		Program:    prog,
	})
	if err != nil {
		var compileErr *gpu.CompileError
		if !errors.As(err, &compileErr) {
			err = &gpu.CompileError{Entry: prog.Entry, Source: source, Err: err}
		}
		return err
	}

	c.program, c.source, c.kernel, c.cache = prog, source, kernel, cc.Cache
	c.log.Debug("compiled",
		"device", cc.Device.Name,
		"precision", c.def.Precision.String(),
		"block", c.blockSize.String(),
		"is1x1", is1x1,
		"fast_path", fast,
		"fp16_simd", simd,
	)
	return nil
}

// SetSrc sets the input tensor used by the next bind.
func (c *ConvTexture) SetSrc(t gpu.Tensor) { c.src = t }

// SetDst sets the output tensor used by the next bind.
func (c *ConvTexture) SetDst(t gpu.Tensor) { c.dst = t }

// BindArguments builds the argument list for the current tensors in
// declaration order.
func (c *ConvTexture) BindArguments() (*gpu.Arguments, error) {
	if c.kernel == nil {
		return nil, gpu.ErrNotCompiled
	}
	if c.src == nil || c.dst == nil {
		return nil, gpu.ErrMissingTensor
	}
	srcBatch := c.src.Shape().B
	args := gpu.NewArguments(c.program.Params)

	steps := []func() error{
		func() error { return args.SetMemory(srcName, c.src.Memory()) },
		func() error { return args.SetMemory(filterNames[0], c.weights[0]) },
		func() error { return args.SetMemory(filterNames[1], c.weights[1]) },
		func() error { return args.SetMemory(filterNames[2], c.weights[2]) },
		func() error { return args.SetMemory(filterNames[3], c.weights[3]) },
		func() error { return args.SetMemory(biasesName, c.biases.Texture) },
		func() error { return gpu.BindLinked(c.linked, args) },
		func() error { return args.SetMemory(dstName, c.dst.Memory()) },
		func() error { return args.SetInt4(srcSize, gpu.SizeOf(c.src)) },
		func() error { return args.SetInt4(dstSize, gpu.SizeOf(c.dst)) },
	}
	if !c.is1x1() {
		steps = append(steps,
			func() error { return args.SetInt2(kernelSize, c.kernelSize) },
			func() error {
				return args.SetInt2(dilation, tensor.Int2{X: c.dilation.X * srcBatch, Y: c.dilation.Y})
			},
		)
	}
	if NeedStrideCorrection(c.def, c.stride) {
		steps = append(steps, func() error { return args.SetInt(batchSize, c.dst.Shape().B) })
	}
	steps = append(steps,
		func() error { return args.SetInt2(strideName, c.stride) },
		func() error {
			return args.SetInt2(padding, tensor.Int2{X: c.padding.X * srcBatch, Y: c.padding.Y})
		},
		args.Complete,
	)
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// GridSize returns the number of work items: one per output tile.
func (c *ConvTexture) GridSize() tensor.Int3 {
	if c.dst == nil {
		return tensor.Int3{}
	}
	s := c.dst.Shape()
	return tensor.Int3{
		X: tensor.DivideRoundUp(s.W*s.B, c.blockSize.X),
		Y: tensor.DivideRoundUp(s.H, c.blockSize.Y),
		Z: tensor.DivideRoundUp(s.Depth(), c.blockSize.Z),
	}
}

// Tune binds the current tensors and searches for a faster work group. The
// previous work group is kept if the search fails.
func (c *ConvTexture) Tune(params TuningParameters) error {
	args, err := c.BindArguments()
	if err != nil {
		return err
	}
	grid := c.GridSize()
	wg, err := pickWorkGroup(params, c.kernel, args, grid)
	if err != nil {
		return err
	}
	c.log.Debug("tuned", "type", params.Type.String(), "grid", grid.String(), "work_group", wg.String())
	c.workGroup = wg
	return nil
}

// AddToQueue binds the current tensors and enqueues the kernel.
func (c *ConvTexture) AddToQueue(exec gpu.Executor) error {
	args, err := c.BindArguments()
	if err != nil {
		return err
	}
	grid := c.GridSize()
	if err := exec.DispatchImplicit(c.kernel, args, grid, c.workGroup); err != nil {
		return &gpu.DispatchError{Grid: grid, WorkGroup: c.workGroup, Err: err}
	}
	return nil
}

// WorkGroupSize returns the work group used by AddToQueue.
func (c *ConvTexture) WorkGroupSize() tensor.Int3 { return c.workGroup }

// BlockSize returns the output tile computed per work item.
func (c *ConvTexture) BlockSize() tensor.Int3 { return c.blockSize }

// Program returns the compiled program, or nil before Compile.
func (c *ConvTexture) Program() *codegen.Program { return c.program }

// Source returns the compiled kernel source, or "" before Compile.
func (c *ConvTexture) Source() string { return c.source }

// dropKernel gives the compiled kernel back to its cache and clears the
// compiled state.
func (c *ConvTexture) dropKernel() {
	if c.kernel != nil && c.cache != nil {
		c.cache.Release(c.kernel)
	}
	c.program, c.source, c.kernel, c.cache = nil, "", nil, nil
}

// Release frees the filter and bias textures and gives back the kernel.
func (c *ConvTexture) Release() {
	c.dropKernel()
	for i, w := range c.weights {
		if w != nil {
			w.Release()
			c.weights[i] = nil
		}
	}
	c.biases.Release()
}
