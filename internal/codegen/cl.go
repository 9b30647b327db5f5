package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/convtex/internal/tensor"
)

const (
	indentUnit = "  "
	newline    = "\n"
	semicolon  = ";"
	comma      = ", "
)

// PrintCL renders p as OpenCL C source: precision defines, macros, then the
// kernel function with one parameter per line in declaration order.
func PrintCL(p *Program) (string, error) {
	defines, err := Defines(p.Precision)
	if err != nil {
		return "", err
	}
	pr := &printer{prog: p}
	pr.buf = append(pr.buf, defines...)
	for _, m := range p.Macros {
		pr.macro(m)
	}
	pr.signature()
	pr.stmts(p.Body, 1)
	pr.buf = append(pr.buf, "}"+newline...)
	if pr.err != nil {
		return "", pr.err
	}
	return string(pr.buf), nil
}

type printer struct {
	prog *Program
	buf  []byte
	err  error
}

func (pr *printer) fail(format string, args ...any) {
	if pr.err == nil {
		pr.err = fmt.Errorf("codegen: "+format, args...)
	}
}

func (pr *printer) macro(m Macro) {
	pr.buf = append(pr.buf, "#define "+m.Name+"("+strings.Join(m.Params, comma)+") \\"+newline...)
	for i, s := range m.Body {
		pr.buf = pr.stmt(pr.buf, s, 0)
		if i < len(m.Body)-1 {
			// Continue the macro onto the next line.
			pr.buf = pr.buf[:len(pr.buf)-1]
			pr.buf = append(pr.buf, " \\"+newline...)
		}
	}
}

func (pr *printer) signature() {
	pr.buf = append(pr.buf, "__kernel void "+pr.prog.Entry+"("+newline...)
	for i, prm := range pr.prog.Params {
		pr.buf = append(pr.buf, "    "...)
		pr.buf = append(pr.buf, pr.declaration(prm)...)
		if i < len(pr.prog.Params)-1 {
			pr.buf = append(pr.buf, ',')
		}
		pr.buf = append(pr.buf, newline...)
	}
	pr.buf = append(pr.buf, ") {"+newline...)
}

func (pr *printer) declaration(prm Param) string {
	switch prm.Kind {
	case ParamScalar:
		return prm.Type.String() + " " + prm.Name
	case ParamImage2D:
		return "__read_only image2d_t " + prm.Name
	case ParamTensor:
		qualifier := "__read_only "
		if prm.Access == AccessWrite {
			qualifier = "__write_only "
		}
		switch prm.Storage {
		case tensor.Buffer:
			return "__global FLT4* " + prm.Name
		case tensor.ImageBuffer:
			return qualifier + "image1d_buffer_t " + prm.Name
		case tensor.Texture2D:
			return qualifier + "image2d_t " + prm.Name
		case tensor.Texture3D:
			return qualifier + "image3d_t " + prm.Name
		case tensor.TextureArray:
			return qualifier + "image2d_array_t " + prm.Name
		}
	}
	pr.fail("cannot declare parameter %q", prm.Name)
	return prm.Name
}

func indent(to []byte, depth int) []byte {
	for range depth {
		to = append(to, indentUnit...)
	}
	return to
}

func (pr *printer) stmts(list []Stmt, depth int) {
	for _, s := range list {
		pr.buf = pr.stmt(pr.buf, s, depth)
	}
}

func (pr *printer) stmt(to []byte, s Stmt, depth int) []byte {
	to = indent(to, depth)
	switch s := s.(type) {
	case Decl:
		to = append(to, s.Type.String()+" "+s.Name...)
		if s.Init != nil {
			to = append(to, " = "...)
			to = pr.expr(to, s.Init)
		}
		to = append(to, semicolon+newline...)
	case Assign:
		to = append(to, s.Name+" "+s.Op+" "...)
		to = pr.expr(to, s.RHS)
		to = append(to, semicolon+newline...)
	case Incr:
		to = append(to, s.Name+"++"+semicolon+newline...)
	case Return:
		to = append(to, "return"+semicolon+newline...)
	case If:
		to = append(to, "if ("...)
		to = pr.expr(to, s.Cond)
		to = append(to, ") {"+newline...)
		to = pr.body(to, s.Body, depth)
	case For:
		to = append(to, "for (int "+s.Var+" = 0; "+s.Var+" < "...)
		to = pr.expr(to, s.Limit)
		to = append(to, "; ++"+s.Var+") {"+newline...)
		to = pr.body(to, s.Body, depth)
	case Block:
		to = append(to, "{"+newline...)
		to = pr.body(to, s.Body, depth)
	case Expand:
		to = append(to, s.Macro+"("...)
		to = pr.exprs(to, s.Args)
		to = append(to, ")"+semicolon+newline...)
	case WriteTensor:
		to = pr.write(to, s)
		to = append(to, semicolon+newline...)
	default:
		pr.fail("unsupported statement %T", s)
	}
	return to
}

func (pr *printer) body(to []byte, list []Stmt, depth int) []byte {
	for _, s := range list {
		to = pr.stmt(to, s, depth+1)
	}
	to = indent(to, depth)
	return append(to, "}"+newline...)
}

func (pr *printer) exprs(to []byte, list []Expr) []byte {
	for i, e := range list {
		if i > 0 {
			to = append(to, comma...)
		}
		to = pr.expr(to, e)
	}
	return to
}

func (pr *printer) expr(to []byte, e Expr) []byte {
	switch e := e.(type) {
	case Ident:
		return append(to, e...)
	case IntLit:
		return strconv.AppendInt(to, int64(e), 10)
	case FloatLit:
		return appendFloat(to, float32(e))
	case Field:
		to = pr.expr(to, e.X)
		return append(to, "."+e.Name...)
	case Binary:
		to = pr.expr(to, e.X)
		to = append(to, " "+string(e.Op)+" "...)
		return pr.expr(to, e.Y)
	case Paren:
		to = append(to, '(')
		to = pr.expr(to, e.X)
		return append(to, ')')
	case Call:
		to = append(to, e.Func+"("...)
		to = pr.exprs(to, e.Args)
		return append(to, ')')
	case Cast:
		to = append(to, "("+e.Type.String()+")("...)
		to = pr.expr(to, e.X)
		return append(to, ')')
	case Convert:
		to = append(to, convertName(e.Type)+"("...)
		to = pr.expr(to, e.X)
		return append(to, ')')
	case VecLit:
		to = append(to, "("+e.Type.String()+")("...)
		to = pr.exprs(to, e.Elems)
		return append(to, ')')
	case ReadTensor:
		return pr.read3D(to, e)
	case ReadLinear:
		return pr.readLinear(to, e)
	case ReadImage2D:
		to = append(to, "READ_IMAGE("+e.Image+", smp_none, (int2)("...)
		to = pr.exprs(to, []Expr{e.X, e.Y})
		return append(to, "))"...)
	default:
		pr.fail("unsupported expression %T", e)
		return to
	}
}

func convertName(t Type) string {
	switch t {
	case TypeFLT4:
		return "TO_FLT4"
	case TypeAccum4:
		return "TO_ACCUM_TYPE"
	case TypeFloat4:
		return "convert_float4"
	default:
		return "convert_" + t.String()
	}
}

func appendFloat(to []byte, v float32) []byte {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return append(to, s+"f"...)
}

// operand wraps anything but an identifier or literal in parentheses, the way
// address macros guard their arguments.
func (pr *printer) operand(to []byte, e Expr) []byte {
	switch e.(type) {
	case Ident, IntLit:
		return pr.expr(to, e)
	}
	to = append(to, '(')
	to = pr.expr(to, e)
	return append(to, ')')
}

func (pr *printer) tensorParam(name string) (Param, bool) {
	prm, ok := pr.prog.Param(name)
	if !ok || prm.Kind != ParamTensor {
		pr.fail("%q is not a tensor parameter", name)
		return Param{}, false
	}
	return prm, true
}

// linearAddress appends (s * size.y + y) * size.x + x, parenthesising
// compound operands.
func (pr *printer) linearAddress(to []byte, size string, x, y, s Expr) []byte {
	to = append(to, '(')
	to = pr.operand(to, s)
	to = append(to, " * "+size+".y + "...)
	to = pr.operand(to, y)
	to = append(to, ") * "+size+".x + "...)
	return pr.operand(to, x)
}

func (pr *printer) imageCoords(to []byte, prm Param, x, y, s Expr) []byte {
	if prm.Storage == tensor.Texture2D {
		to = append(to, "(int2)("...)
		to = pr.operand(to, x)
		to = append(to, comma...)
		to = pr.operand(to, y)
		to = append(to, " * "+prm.SizeName+".w + "...)
		to = pr.operand(to, s)
		return append(to, ')')
	}
	to = append(to, "(int4)("...)
	to = pr.operand(to, x)
	to = append(to, comma...)
	to = pr.operand(to, y)
	to = append(to, comma...)
	to = pr.operand(to, s)
	return append(to, ", 0)"...)
}

func (pr *printer) read3D(to []byte, e ReadTensor) []byte {
	prm, ok := pr.tensorParam(e.Tensor)
	if !ok {
		return to
	}
	switch prm.Storage {
	case tensor.Buffer:
		to = append(to, prm.Name+"["...)
		to = pr.linearAddress(to, prm.SizeName, e.X, e.Y, e.S)
		return append(to, ']')
	case tensor.ImageBuffer:
		to = append(to, "READ_IMAGE("+prm.Name+comma...)
		to = pr.linearAddress(to, prm.SizeName, e.X, e.Y, e.S)
		return append(to, ')')
	default:
		to = append(to, "READ_IMAGE("+prm.Name+comma+e.Sampler.String()+comma...)
		to = pr.imageCoords(to, prm, e.X, e.Y, e.S)
		return append(to, ')')
	}
}

func (pr *printer) readLinear(to []byte, e ReadLinear) []byte {
	prm, ok := pr.tensorParam(e.Tensor)
	if !ok {
		return to
	}
	switch prm.Storage {
	case tensor.ImageBuffer:
		to = append(to, "READ_IMAGE("+prm.Name+comma...)
		to = pr.expr(to, e.Addr)
		return append(to, ')')
	case tensor.Buffer:
		to = append(to, prm.Name+"["...)
		to = pr.expr(to, e.Addr)
		return append(to, ']')
	default:
		pr.fail("linear read of %s tensor %q", prm.Storage, prm.Name)
		return to
	}
}

func (pr *printer) write(to []byte, s WriteTensor) []byte {
	prm, ok := pr.tensorParam(s.Tensor)
	if !ok {
		return to
	}
	switch prm.Storage {
	case tensor.Buffer:
		to = append(to, prm.Name+"["...)
		to = pr.linearAddress(to, prm.SizeName, s.X, s.Y, s.S)
		to = append(to, "] = "...)
		return pr.expr(to, s.Value)
	case tensor.ImageBuffer:
		to = append(to, "WRITE_IMAGE("+prm.Name+comma...)
		to = pr.linearAddress(to, prm.SizeName, s.X, s.Y, s.S)
	default:
		to = append(to, "WRITE_IMAGE("+prm.Name+comma...)
		to = pr.imageCoords(to, prm, s.X, s.Y, s.S)
	}
	to = append(to, comma...)
	to = pr.expr(to, s.Value)
	return append(to, ')')
}
