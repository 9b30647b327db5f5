// Package ref is a reference compute device that runs generated kernel
// programs on the host.
//
// Programs are interpreted from their structured form with the numeric rules
// of the target: half values are rounded after every operation, integer
// division truncates, and reads outside an image return zero. It implements
// the device context, compiler and executor so operations can be exercised
// end to end without a GPU.
package ref

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/logger"
	"github.com/born-ml/convtex/internal/parallel"
	"github.com/born-ml/convtex/internal/tensor"
)

// Option configures a Device.
type Option func(*Device)

// WithParallel sets how work groups are spread over goroutines.
func WithParallel(cfg parallel.Config) Option {
	return func(d *Device) { d.parallel = cfg }
}

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithGroupOverhead sets the fixed cost Measure charges per work group.
func WithGroupOverhead(d time.Duration) Option {
	return func(dev *Device) { dev.groupOverhead = d }
}

// Device is the reference device. It is safe for concurrent use.
type Device struct {
	info          gpu.DeviceInfo
	parallel      parallel.Config
	log           logger.Logger
	groupOverhead time.Duration
}

var (
	_ gpu.Context  = (*Device)(nil)
	_ gpu.Compiler = (*Device)(nil)
	_ gpu.Executor = (*Device)(nil)
)

// NewDevice returns a reference device reporting the given capabilities.
func NewDevice(info gpu.DeviceInfo, opts ...Option) *Device {
	if !info.MaxWorkGroupSize.Positive() {
		info.MaxWorkGroupSize = gpu.DefaultMaxWorkGroupSize
	}
	if info.MaxWorkGroupInvocations <= 0 {
		info.MaxWorkGroupInvocations = gpu.DefaultMaxWorkGroupInvocations
	}
	if info.Name == "" {
		info.Name = "reference"
	}
	d := &Device{
		info:          info,
		parallel:      parallel.DefaultConfig(),
		log:           logger.Discard(),
		groupOverhead: 64 * time.Nanosecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("device", info.Name)
	return d
}

// Info returns the device capabilities.
func (d *Device) Info() gpu.DeviceInfo { return d.info }

// CreateTexture2D uploads an RGBA texture.
func (d *Device) CreateTexture2D(desc gpu.TextureDesc, data []byte) (gpu.Texture2D, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("texture size %dx%d", desc.Width, desc.Height)
	}
	values, err := tensor.Decode(desc.DataType, data)
	if err != nil {
		return nil, err
	}
	if len(values) != desc.Width*desc.Height*4 {
		return nil, fmt.Errorf("texture %dx%d needs %d values, got %d", desc.Width, desc.Height, desc.Width*desc.Height*4, len(values))
	}
	img := newImage(gpu.MemoryImage2D, desc.DataType, desc.Width, desc.Height, 1)
	for i, v := range values {
		img.texels[i] = desc.DataType.Round(v)
	}
	return img, nil
}

// CreateTensor allocates a zeroed tensor.
func (d *Device) CreateTensor(shape tensor.BHWC, desc tensor.Descriptor) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, &gpu.AllocationError{Resource: "tensor", Err: err}
	}
	kind, err := gpu.MemoryKindFor(desc.Storage)
	if err != nil {
		return nil, &gpu.AllocationError{Resource: "tensor", Err: err}
	}
	return &Tensor{
		shape: shape,
		desc:  desc,
		mem:   newImage(kind, desc.DataType, shape.W*shape.B, shape.H, shape.Depth()),
	}, nil
}

// Upload copies a host tensor into t, rounding to t's data type.
func (d *Device) Upload(t *Tensor, h *tensor.Host) error {
	if err := h.CheckShape(t.shape); err != nil {
		return err
	}
	if err := t.mem.live(); err != nil {
		return err
	}
	s := t.shape
	for b := range s.B {
		for y := range s.H {
			for x := range s.W {
				for sl := range s.Depth() {
					var texel [4]float32
					for l := range 4 {
						if c := sl*4 + l; c < s.C {
							texel[l] = h.At(b, y, x, c)
						}
					}
					if err := t.mem.Store(x*s.B+b, y, sl, texel); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Download copies t into a new host tensor.
func (d *Device) Download(t *Tensor) (*tensor.Host, error) {
	if err := t.mem.live(); err != nil {
		return nil, err
	}
	h, err := tensor.NewHost(t.shape)
	if err != nil {
		return nil, err
	}
	s := t.shape
	h.Fill(func(b, y, x, c int) float32 {
		return t.mem.Texel(x*s.B+b, y, c/4)[c%4]
	})
	return h, nil
}

// Kernel is a program accepted by the reference compiler.
type Kernel struct {
	dev     *Device
	prog    *codegen.Program
	macros  map[string]*codegen.Macro
	options []gpu.CompilerOption
}

// EntryPoint returns the kernel function name.
func (k *Kernel) EntryPoint() string { return k.prog.Entry }

// Options returns the compiler options the kernel was built with.
func (k *Kernel) Options() []gpu.CompilerOption { return k.options }

// Program returns the interpreted program.
func (k *Kernel) Program() *codegen.Program { return k.prog }

// Release is a no-op; programs hold no device resources.
func (k *Kernel) Release() {}

// Compile checks a program for the structural errors a real compiler would
// reject. The reference device executes req.Program; req.Source must be its
// printed form.
func (d *Device) Compile(req gpu.CompileRequest) (gpu.Kernel, error) {
	prog := req.Program
	if prog == nil {
		return nil, fmt.Errorf("reference device compiles structured programs only")
	}
	if prog.Entry != req.EntryPoint {
		return nil, fmt.Errorf("entry point %q not found (program defines %q)", req.EntryPoint, prog.Entry)
	}
	seen := make(map[string]bool, len(prog.Params))
	for _, prm := range prog.Params {
		if seen[prm.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", prm.Name)
		}
		seen[prm.Name] = true
	}
	macros := make(map[string]*codegen.Macro, len(prog.Macros))
	for i := range prog.Macros {
		macros[prog.Macros[i].Name] = &prog.Macros[i]
	}
	if err := checkExpansions(prog.Body, macros); err != nil {
		return nil, err
	}
	d.log.Debug("compiled", "entry", prog.Entry, "params", len(prog.Params), "options", len(req.Options))
	return &Kernel{dev: d, prog: prog, macros: macros, options: req.Options}, nil
}

func checkExpansions(list []codegen.Stmt, macros map[string]*codegen.Macro) error {
	for _, s := range list {
		var err error
		switch s := s.(type) {
		case codegen.Expand:
			if _, ok := macros[s.Macro]; !ok {
				err = fmt.Errorf("undefined macro %s", s.Macro)
			}
		case codegen.If:
			err = checkExpansions(s.Body, macros)
		case codegen.For:
			err = checkExpansions(s.Body, macros)
		case codegen.Block:
			err = checkExpansions(s.Body, macros)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) kernel(k gpu.Kernel) (*Kernel, error) {
	rk, ok := k.(*Kernel)
	if !ok || rk.dev != d {
		return nil, gpu.ErrForeignKernel
	}
	return rk, nil
}

func (d *Device) checkWorkGroup(wg tensor.Int3) error {
	limit, total := d.info.WorkGroupLimits()
	if !wg.Positive() || wg.X > limit.X || wg.Y > limit.Y || wg.Z > limit.Z || wg.Product() > total {
		return fmt.Errorf("%w: %v exceeds limits %v/%d", gpu.ErrNoWorkGroup, wg, limit, total)
	}
	return nil
}

// DispatchImplicit runs k over grid rounded up to whole work groups. Work
// groups run in parallel; items within a group run in order.
func (d *Device) DispatchImplicit(k gpu.Kernel, args *gpu.Arguments, grid, workGroup tensor.Int3) error {
	rk, err := d.kernel(k)
	if err != nil {
		return err
	}
	if err := d.checkWorkGroup(workGroup); err != nil {
		return err
	}
	params, err := bindParams(rk.prog, args)
	if err != nil {
		return err
	}

	global := tensor.AlignByN3(grid, workGroup)
	groups := tensor.DivideRoundUp3(global, workGroup)
	return parallel.ForErr(context.Background(), groups.Product(), func(g int) error {
		m := &machine{prog: rk.prog, macros: rk.macros, params: params}
		gx := g % groups.X
		gy := g / groups.X % groups.Y
		gz := g / (groups.X * groups.Y)
		for lz := range workGroup.Z {
			for ly := range workGroup.Y {
				for lx := range workGroup.X {
					gid := [3]int{gx*workGroup.X + lx, gy*workGroup.Y + ly, gz*workGroup.Z + lz}
					if err := m.run(gid); err != nil {
						return fmt.Errorf("work item %v: %w", gid, err)
					}
				}
			}
		}
		return nil
	}, d.parallel)
}

// Measure returns a deterministic cost for running k with workGroup instead
// of timing it: one unit per launched work item plus a fixed overhead per
// group, so padding waste and tiny groups both cost time.
func (d *Device) Measure(k gpu.Kernel, args *gpu.Arguments, grid, workGroup tensor.Int3) (time.Duration, error) {
	rk, err := d.kernel(k)
	if err != nil {
		return 0, err
	}
	if err := d.checkWorkGroup(workGroup); err != nil {
		return 0, err
	}
	if _, err := bindParams(rk.prog, args); err != nil {
		return 0, err
	}
	global := tensor.AlignByN3(grid, workGroup)
	groups := tensor.DivideRoundUp3(global, workGroup)
	return time.Duration(global.Product())*time.Nanosecond + time.Duration(groups.Product())*d.groupOverhead, nil
}
