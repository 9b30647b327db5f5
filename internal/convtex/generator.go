package convtex

import (
	"fmt"
	"strconv"

	cg "github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// EntryPoint is the name of the generated kernel function.
const EntryPoint = "main_function"

// Kernel parameter names.
const (
	srcName    = "src_data"
	dstName    = "dst_data"
	srcSize    = "src_size"
	dstSize    = "dst_size"
	biasesName = "biases"
	kernelSize = "kernel_size"
	dilation   = "dilation"
	batchSize  = "BATCH_SIZE"
	strideName = "stride"
	padding    = "padding"
)

var filterNames = [4]string{"filters0", "filters1", "filters2", "filters3"}

// GeneratorConfig is the static input of GenerateConvCode.
type GeneratorConfig struct {
	Definition gpu.OperationDef
	BlockSize  tensor.Int3
	Is1x1      bool
	// FastPath writes results at (xc0, yc0) instead of (X, Y); valid only
	// when those coincide (unit stride and zero padding).
	FastPath bool
	Stride   tensor.Int2
	Device   gpu.DeviceInfo
	Linked   []gpu.LinkedOperation
}

func (c GeneratorConfig) validate() error {
	if err := c.Definition.Precision.Validate(); err != nil {
		return &gpu.ConfigurationError{Field: "precision", Details: err.Error(), Err: gpu.ErrUnsupportedPrecision}
	}
	if !c.BlockSize.Positive() {
		return &gpu.ConfigurationError{Field: "block_size", Details: c.BlockSize.String(), Err: gpu.ErrInvalidBlockSize}
	}
	if c.Stride.X < 1 || c.Stride.Y < 1 {
		return &gpu.ConfigurationError{Field: "stride", Details: c.Stride.String()}
	}
	if len(c.Definition.Src) == 0 || len(c.Definition.Dst) == 0 {
		return &gpu.ConfigurationError{Field: "definition", Details: "one source and one destination tensor are required"}
	}
	if s := c.Definition.Src[0].Storage; !s.IsImage() {
		return &gpu.ConfigurationError{
			Field:   "src_storage",
			Details: fmt.Sprintf("source must be sampled through an image, got %s", s),
			Err:     gpu.ErrUnsupportedStorage,
		}
	}
	if _, err := gpu.MemoryKindFor(c.Definition.Dst[0].Storage); err != nil {
		return &gpu.ConfigurationError{Field: "dst_storage", Details: err.Error(), Err: gpu.ErrUnsupportedStorage}
	}
	return nil
}

// GenerateConvCode builds the convolution kernel for cfg. Each work item
// computes a BlockSize tile of output pixels and slices, accumulating over
// input slices and (unless Is1x1) kernel taps. Identical configurations yield
// identical programs.
func GenerateConvCode(cfg GeneratorConfig) (*cg.Program, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	g := &generator{
		GeneratorConfig: cfg,
		imageBuffer:     cfg.Definition.Src[0].Storage == tensor.ImageBuffer,
		strideFix:       NeedStrideCorrection(cfg.Definition, cfg.Stride),
	}
	return &cg.Program{
		Precision: cfg.Definition.Precision,
		Entry:     EntryPoint,
		Macros:    g.macros(),
		Params:    g.params(),
		Body:      g.body(),
	}, nil
}

type generator struct {
	GeneratorConfig
	imageBuffer bool
	strideFix   bool
}

func num(prefix string, i int) string { return prefix + strconv.Itoa(i) }

func id(prefix string, i int) cg.Ident { return cg.Id(num(prefix, i)) }

func (g *generator) macros() []cg.Macro {
	macros := make([]cg.Macro, g.BlockSize.Z)
	s := cg.Id("S")
	for z := range g.BlockSize.Z {
		terms := [4]cg.Expr{}
		for i, lane := range []string{"x", "y", "z", "w"} {
			terms[i] = cg.Mul(cg.Dot(s, lane), id("f", z*4+i))
		}
		var body []cg.Stmt
		if g.Definition.Precision == cg.F32F16 {
			sum := cg.Add(cg.Add(cg.Add(terms[0], terms[1]), terms[2]), terms[3])
			body = []cg.Stmt{cg.AddTo("R", cg.Convert{Type: cg.TypeFloat4, X: sum})}
		} else {
			for _, t := range terms {
				body = append(body, cg.AddTo("R", t))
			}
		}
		macros[z] = cg.Macro{Name: num("CONV", z), Params: []string{"R", "S"}, Body: body}
	}
	return macros
}

// params is the single ordered declaration the printer emits and
// BindArguments fills.
func (g *generator) params() []cg.Param {
	scalar := func(name string, t cg.Type) cg.Param {
		return cg.Param{Name: name, Kind: cg.ParamScalar, Type: t}
	}
	params := []cg.Param{{
		Name:     srcName,
		Kind:     cg.ParamTensor,
		Storage:  g.Definition.Src[0].Storage,
		SizeName: srcSize,
		Access:   cg.AccessRead,
	}}
	for _, f := range filterNames {
		params = append(params, cg.Param{Name: f, Kind: cg.ParamImage2D})
	}
	params = append(params, cg.Param{Name: biasesName, Kind: cg.ParamImage2D})
	params = append(params, gpu.LinkedParams(g.Linked)...)
	params = append(params,
		cg.Param{
			Name:     dstName,
			Kind:     cg.ParamTensor,
			Storage:  g.Definition.Dst[0].Storage,
			SizeName: dstSize,
			Access:   cg.AccessWrite,
		},
		scalar(srcSize, cg.TypeInt4),
		scalar(dstSize, cg.TypeInt4),
	)
	if !g.Is1x1 {
		params = append(params, scalar(kernelSize, cg.TypeInt2), scalar(dilation, cg.TypeInt2))
	}
	if g.strideFix {
		params = append(params, scalar(batchSize, cg.TypeInt))
	}
	return append(params, scalar(strideName, cg.TypeInt2), scalar(padding, cg.TypeInt2))
}

func (g *generator) body() []cg.Stmt {
	bx, by, bz := g.BlockSize.X, g.BlockSize.Y, g.BlockSize.Z
	stride, pad := cg.Id(strideName), cg.Id(padding)
	dst := cg.Id(dstSize)

	var code []cg.Stmt
	for i, axis := range []string{"X", "Y", "Z"} {
		block := []int{bx, by, bz}[i]
		code = append(code, cg.Let(cg.TypeInt, axis, cg.Mul(cg.Fn("get_global_id", cg.Int(i)), cg.Int(block))))
	}
	code = append(code, cg.If{
		Cond: cg.Or(cg.Or(
			cg.Ge(cg.Id("X"), cg.Dot(dst, "x")),
			cg.Ge(cg.Id("Y"), cg.Dot(dst, "y"))),
			cg.Ge(cg.Id("Z"), cg.Dot(dst, "w"))),
		Body: []cg.Stmt{cg.Return{}},
	})

	// Source coordinates of the tile.
	for x := range bx {
		lane := cg.P(cg.Add(cg.Id("X"), cg.Int(x)))
		if g.strideFix {
			batch := cg.Id(batchSize)
			code = append(code,
				cg.Let(cg.TypeInt, num("p", x), cg.Div(lane, batch)),
				cg.Let(cg.TypeInt, num("b", x), cg.Rem(lane, batch)),
				cg.Let(cg.TypeInt, num("xc", x), cg.Add(cg.Add(
					cg.Mul(cg.Mul(id("p", x), batch), cg.Dot(stride, "x")),
					id("b", x)),
					cg.Dot(pad, "x"))),
			)
		} else {
			code = append(code, cg.Let(cg.TypeInt, num("xc", x),
				cg.Add(cg.Mul(lane, cg.Dot(stride, "x")), cg.Dot(pad, "x"))))
		}
	}
	for y := range by {
		lane := cg.P(cg.Add(cg.Id("Y"), cg.Int(y)))
		code = append(code, cg.Let(cg.TypeInt, num("yc", y),
			cg.Add(cg.Mul(lane, cg.Dot(stride, "y")), cg.Dot(pad, "y"))))
	}
	zero := cg.FloatLit(0)
	for i := range bx * by * bz {
		code = append(code, cg.Let(cg.TypeAccum4, num("r", i),
			cg.VecLit{Type: cg.TypeAccum4, Elems: []cg.Expr{zero, zero, zero, zero}}))
	}

	if g.Is1x1 {
		if g.imageBuffer {
			code = append(code, g.imageBufferAddresses("xc", "yc")...)
		}
		code = append(code, g.sliceLoop())
	} else {
		code = append(code, g.kernelLoops()...)
	}
	return append(code, g.epilogue()...)
}

// kernelLoops declares the tap coordinates and wraps the slice loop in the
// kernel_size.y by kernel_size.x tap loops.
func (g *generator) kernelLoops() []cg.Stmt {
	bx, by := g.BlockSize.X, g.BlockSize.Y
	src, dil := cg.Id(srcSize), cg.Id(dilation)

	var code []cg.Stmt
	for x := range bx {
		code = append(code, cg.Var(cg.TypeInt, num("cx", x)))
	}
	for y := range by {
		code = append(code, cg.Var(cg.TypeInt, num("cy", y)))
	}
	code = append(code, cg.Let(cg.TypeInt, "filter_offset", cg.Int(0)))

	var outer []cg.Stmt
	for y := range by {
		outer = append(outer, cg.Set(num("cy", y), cg.Add(cg.Mul(cg.Id("y"), cg.Dot(dil, "y")), id("yc", y))))
	}
	if g.imageBuffer {
		for y := range by {
			outer = append(outer, cg.Let(cg.TypeBool, num("in_y", y),
				cg.And(cg.Ge(id("cy", y), cg.Int(0)), cg.Lt(id("cy", y), cg.Dot(src, "y")))))
		}
	}

	var inner []cg.Stmt
	for x := range bx {
		inner = append(inner, cg.Set(num("cx", x), cg.Add(cg.Mul(cg.Id("x"), cg.Dot(dil, "x")), id("xc", x))))
	}
	if g.imageBuffer {
		inner = append(inner, g.imageBufferAddresses("cx", "cy")...)
	}
	inner = append(inner, g.sliceLoop())

	outer = append(outer, cg.For{Var: "x", Limit: cg.Dot(cg.Id(kernelSize), "x"), Body: inner})
	return append(code, cg.For{Var: "y", Limit: cg.Dot(cg.Id(kernelSize), "y"), Body: outer})
}

// imageBufferAddresses emits the in-bounds flags and per-pixel linear
// addresses of an image-buffer source. Out-of-bounds pixels get address -1 and
// a zero slice step so every read of them returns zero. For tap loops the
// in_y flags are emitted by the caller one loop level up.
func (g *generator) imageBufferAddresses(xp, yp string) []cg.Stmt {
	bx, by := g.BlockSize.X, g.BlockSize.Y
	src := cg.Id(srcSize)
	var code []cg.Stmt
	if g.Is1x1 {
		for y := range by {
			code = append(code, cg.Let(cg.TypeBool, num("in_y", y),
				cg.And(cg.Ge(id(yp, y), cg.Int(0)), cg.Lt(id(yp, y), cg.Dot(src, "y")))))
		}
	}
	for x := range bx {
		code = append(code, cg.Let(cg.TypeBool, num("in_x", x),
			cg.And(cg.Ge(id(xp, x), cg.Int(0)), cg.Lt(id(xp, x), cg.Dot(src, "x")))))
	}
	for x := range bx {
		for y := range by {
			i := y*bx + x
			inside := cg.P(cg.And(id("in_x", x), id("in_y", y)))
			code = append(code,
				cg.Let(cg.TypeInt, num("addr_", i), cg.Fn("select",
					cg.Int(-1), cg.Add(cg.Mul(id(yp, y), cg.Dot(src, "x")), id(xp, x)), inside)),
				cg.Let(cg.TypeInt, num("dz_", i), cg.Fn("select",
					cg.Int(0), cg.Mul(cg.Dot(src, "x"), cg.Dot(src, "y")), inside)),
			)
		}
	}
	return code
}

// sliceLoop is the reduction over source slices.
func (g *generator) sliceLoop() cg.Stmt {
	bx, by, bz := g.BlockSize.X, g.BlockSize.Y, g.BlockSize.Z
	var body []cg.Stmt
	if g.imageBuffer {
		for i := range bx * by {
			body = append(body, cg.Let(cg.TypeFLT4, num("src", i), cg.ReadLinear{Tensor: srcName, Addr: id("addr_", i)}))
		}
	}
	filterY := cg.Id("s")
	if !g.Is1x1 {
		filterY = cg.Id("filter_offset")
	}
	for z := range bz {
		fx := cg.Add(cg.Id("Z"), cg.Int(z))
		for k, f := range filterNames {
			body = append(body, cg.Let(cg.TypeFLT4, num("f", z*4+k), cg.ReadImage2D{Image: f, X: fx, Y: filterY}))
		}
	}
	if !g.imageBuffer {
		xp, yp := "cx", "cy"
		if g.Is1x1 {
			xp, yp = "xc", "yc"
		}
		sampler := samplerFor(g.Device)
		for x := range bx {
			for y := range by {
				body = append(body, cg.Let(cg.TypeFLT4, num("src", y*bx+x), cg.ReadTensor{
					Tensor:  srcName,
					X:       id(xp, x),
					Y:       id(yp, y),
					S:       cg.Id("s"),
					Sampler: sampler,
				}))
			}
		}
	}
	for z := range bz {
		for i := range bx * by {
			body = append(body, cg.Expand{Macro: num("CONV", z), Args: []cg.Expr{id("r", i+z*bx*by), id("src", i)}})
		}
	}
	if !g.Is1x1 {
		body = append(body, cg.Incr{Name: "filter_offset"})
	}
	if g.imageBuffer {
		for i := range bx * by {
			body = append(body, cg.AddTo(num("addr_", i), id("dz_", i)))
		}
	}
	return cg.For{Var: "s", Limit: cg.Dot(cg.Id(srcSize), "w"), Body: body}
}

// epilogue adds bias, applies linked operations and writes each in-range
// pixel of the tile, one output slice at a time.
func (g *generator) epilogue() []cg.Stmt {
	bx, by, bz := g.BlockSize.X, g.BlockSize.Y, g.BlockSize.Z
	dst := cg.Id(dstSize)
	dstX, dstY := cg.Id("X"), cg.Id("Y")
	if g.Is1x1 && g.FastPath {
		dstX, dstY = cg.Id("xc0"), cg.Id("yc0")
	}
	link := gpu.LinkingContext{Var: "res", X: "xc", Y: "yc", Z: "Z"}

	var code []cg.Stmt
	for z := range bz {
		slice := []cg.Stmt{
			cg.Let(cg.TypeFLT4, "bias_val", cg.ReadImage2D{Image: biasesName, X: cg.Id("Z"), Y: cg.Int(0)}),
		}
		for y := range by {
			for x := range bx {
				r := id("r", (z*by+y)*bx+x)
				write := []cg.Stmt{
					cg.Let(cg.TypeFLT4, "res", cg.Add(cg.Convert{Type: cg.TypeFLT4, X: r}, cg.Id("bias_val"))),
				}
				write = append(write, gpu.LinkedCode(g.Linked, link)...)
				write = append(write, cg.WriteTensor{
					Tensor: dstName,
					Value:  cg.Id("res"),
					X:      cg.Id("xc"),
					Y:      cg.Id("yc"),
					S:      cg.Id("Z"),
				})
				slice = append(slice, cg.Block{Body: []cg.Stmt{
					cg.Let(cg.TypeInt, "xc", cg.Add(dstX, cg.Int(x))),
					cg.Let(cg.TypeInt, "yc", cg.Add(dstY, cg.Int(y))),
					cg.If{
						Cond: cg.And(cg.Lt(cg.Id("xc"), cg.Dot(dst, "x")), cg.Lt(cg.Id("yc"), cg.Dot(dst, "y"))),
						Body: write,
					},
				}})
			}
		}
		code = append(code,
			cg.If{Cond: cg.Lt(cg.Id("Z"), cg.Dot(dst, "w")), Body: slice},
			cg.Incr{Name: "Z"},
		)
	}
	return code
}
