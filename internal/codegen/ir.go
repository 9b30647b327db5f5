// Package codegen holds the structured representation of generated compute kernels
// and the printer that renders it to OpenCL C source.
//
// Generators build a Program out of expression and statement nodes. The same
// Program is printed to text for a real compiler and walked directly by the
// reference device, so arithmetic can be tested without parsing source.
package codegen

import "github.com/born-ml/convtex/internal/tensor"

// Type is the type of a kernel value.
type Type int

// Kernel value types. FLT, FLT4 and ACCUM_FLT4 resolve through the precision defines.
const (
	TypeInt Type = iota
	TypeInt2
	TypeInt4
	TypeBool
	TypeFloat
	TypeFloat4
	TypeFLT
	TypeFLT4
	TypeAccum4
)

// String returns the type as spelled in kernel source.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeInt2:
		return "int2"
	case TypeInt4:
		return "int4"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	case TypeFloat4:
		return "float4"
	case TypeFLT:
		return "FLT"
	case TypeFLT4:
		return "FLT4"
	case TypeAccum4:
		return "ACCUM_FLT4"
	default:
		return "unknown"
	}
}

// Lanes returns the vector width of the type.
func (t Type) Lanes() int {
	switch t {
	case TypeInt2:
		return 2
	case TypeInt4, TypeFloat4, TypeFLT4, TypeAccum4:
		return 4
	default:
		return 1
	}
}

// Op is a binary operator.
type Op string

// Binary operators.
const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpRem Op = "%"
	OpLT  Op = "<"
	OpLE  Op = "<="
	OpGT  Op = ">"
	OpGE  Op = ">="
	OpEQ  Op = "=="
	OpNE  Op = "!="
	OpAnd Op = "&&"
	OpOr  Op = "||"
)

// Sampler selects the out-of-range policy of a texture read.
type Sampler int

// Samplers declared by the common defines.
const (
	// SamplerZero returns zero outside the image.
	SamplerZero Sampler = iota
	// SamplerNone leaves out-of-range reads to the hardware.
	SamplerNone
)

// String returns the sampler name as declared in kernel source.
func (s Sampler) String() string {
	if s == SamplerNone {
		return "smp_none"
	}
	return "smp_zero"
}

// Expr is an expression node.
type Expr interface {
	expr()
}

// Ident references a local variable, a kernel parameter or a macro parameter.
type Ident string

// IntLit is an integer literal.
type IntLit int

// FloatLit is a float literal.
type FloatLit float32

// Field selects a vector component (x, y, z or w).
type Field struct {
	X    Expr
	Name string
}

// Binary applies Op to X and Y. It never adds parentheses of its own.
type Binary struct {
	Op   Op
	X, Y Expr
}

// Paren wraps X in parentheses.
type Paren struct {
	X Expr
}

// Call invokes a builtin function (get_global_id, select, min, max, clamp).
type Call struct {
	Func string
	Args []Expr
}

// Cast is a C-style cast (T)(X).
type Cast struct {
	Type Type
	X    Expr
}

// Convert is a vector conversion (TO_FLT4, convert_float4, TO_ACCUM_TYPE).
type Convert struct {
	Type Type
	X    Expr
}

// VecLit is a vector literal (T)(e0, e1, ...).
type VecLit struct {
	Type  Type
	Elems []Expr
}

// ReadTensor fetches one texel of a tensor parameter at (X, Y, S).
type ReadTensor struct {
	Tensor  string
	X, Y, S Expr
	Sampler Sampler
}

// ReadLinear fetches one texel of an image-buffer tensor at a linear address.
// Negative addresses read as zero.
type ReadLinear struct {
	Tensor string
	Addr   Expr
}

// ReadImage2D fetches one texel of a 2D image parameter with smp_none.
type ReadImage2D struct {
	Image string
	X, Y  Expr
}

func (Ident) expr()       {}
func (IntLit) expr()      {}
func (FloatLit) expr()    {}
func (Field) expr()       {}
func (Binary) expr()      {}
func (Paren) expr()       {}
func (Call) expr()        {}
func (Cast) expr()        {}
func (Convert) expr()     {}
func (VecLit) expr()      {}
func (ReadTensor) expr()  {}
func (ReadLinear) expr()  {}
func (ReadImage2D) expr() {}

// Stmt is a statement node.
type Stmt interface {
	stmt()
}

// Decl declares a local variable, optionally initialised.
type Decl struct {
	Type Type
	Name string
	Init Expr
}

// Assign stores RHS into the named variable using Op ("=" or "+=").
type Assign struct {
	Name string
	Op   string
	RHS  Expr
}

// Incr increments an int variable.
type Incr struct {
	Name string
}

// Return leaves the kernel.
type Return struct{}

// If runs Body when Cond holds.
type If struct {
	Cond Expr
	Body []Stmt
}

// For is the counted loop "for (int Var = 0; Var < Limit; ++Var)".
type For struct {
	Var   string
	Limit Expr
	Body  []Stmt
}

// Block is a braced scope.
type Block struct {
	Body []Stmt
}

// Expand invokes a function-like macro.
type Expand struct {
	Macro string
	Args  []Expr
}

// WriteTensor stores Value into a tensor parameter at (X, Y, S).
type WriteTensor struct {
	Tensor  string
	Value   Expr
	X, Y, S Expr
}

func (Decl) stmt()        {}
func (Assign) stmt()      {}
func (Incr) stmt()        {}
func (Return) stmt()      {}
func (If) stmt()          {}
func (For) stmt()         {}
func (Block) stmt()       {}
func (Expand) stmt()      {}
func (WriteTensor) stmt() {}

// Macro is a function-like macro. Params are substituted by name.
type Macro struct {
	Name   string
	Params []string
	Body   []Stmt
}

// ParamKind classifies kernel parameters.
type ParamKind int

// Parameter kinds.
const (
	ParamTensor ParamKind = iota
	ParamImage2D
	ParamScalar
)

// Access is the access qualifier of a memory parameter.
type Access int

// Access qualifiers.
const (
	AccessRead Access = iota
	AccessWrite
)

// Param is one entry of a kernel signature. The ordered parameter list of a
// Program is the single declaration shared by the printer and the binder.
type Param struct {
	Name string
	Kind ParamKind
	// Type is the value type of a scalar parameter.
	Type Type
	// Storage and SizeName apply to tensor parameters. SizeName names the int4
	// parameter holding the tensor extents used for address arithmetic.
	Storage  tensor.StorageType
	SizeName string
	Access   Access
}

// Program is a complete kernel translation unit.
type Program struct {
	Precision Precision
	Entry     string
	Macros    []Macro
	Params    []Param
	Body      []Stmt
}

// Param looks up a parameter by name.
func (p *Program) Param(name string) (Param, bool) {
	for _, prm := range p.Params {
		if prm.Name == name {
			return prm, true
		}
	}
	return Param{}, false
}

// ParamNames returns the parameter names in declaration order.
func (p *Program) ParamNames() []string {
	names := make([]string, len(p.Params))
	for i, prm := range p.Params {
		names[i] = prm.Name
	}
	return names
}
