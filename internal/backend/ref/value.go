package ref

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/born-ml/convtex/internal/codegen"
)

type valueKind int

const (
	kindInt valueKind = iota
	kindBool
	kindFloat
	kindHalf
)

func (k valueKind) String() string {
	switch k {
	case kindInt:
		return "int"
	case kindBool:
		return "bool"
	case kindFloat:
		return "float"
	default:
		return "half"
	}
}

// value is a scalar or short vector held by the interpreter. Integer and
// boolean lanes live in i, floating lanes in f. Half lanes are kept as the
// float32 nearest to their half value.
type value struct {
	kind  valueKind
	lanes int
	i     [4]int
	f     [4]float32
}

func intValue(v ...int) value {
	out := value{kind: kindInt, lanes: len(v)}
	copy(out.i[:], v)
	return out
}

func boolValue(b bool) value {
	out := value{kind: kindBool, lanes: 1}
	if b {
		out.i[0] = 1
	}
	return out
}

func floatValue(kind valueKind, v ...float32) value {
	out := value{kind: kind, lanes: len(v)}
	for l, x := range v {
		out.f[l] = x
	}
	if kind == kindHalf {
		out.roundHalf()
	}
	return out
}

func roundHalf(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

func (v *value) roundHalf() {
	for l := range v.lanes {
		v.f[l] = roundHalf(v.f[l])
	}
}

func (v value) isFloat() bool { return v.kind == kindFloat || v.kind == kindHalf }

// lane returns lane l, broadcasting scalars.
func (v value) lane(l int) value {
	if v.lanes == 1 {
		l = 0
	}
	out := value{kind: v.kind, lanes: 1}
	out.i[0] = v.i[l]
	out.f[0] = v.f[l]
	return out
}

func (v value) float(l int) float32 {
	if v.lanes == 1 {
		l = 0
	}
	if v.isFloat() {
		return v.f[l]
	}
	return float32(v.i[l])
}

func (v value) int(l int) int {
	if v.lanes == 1 {
		l = 0
	}
	if v.isFloat() {
		return int(v.f[l])
	}
	return v.i[l]
}

func (v value) truthy() bool {
	if v.isFloat() {
		return v.f[0] != 0
	}
	return v.i[0] != 0
}

func (v value) texel() [4]float32 {
	var t [4]float32
	for l := range 4 {
		t[l] = v.float(l)
	}
	return t
}

func (v value) String() string {
	if v.isFloat() {
		return fmt.Sprintf("%s%v", v.kind, v.f[:v.lanes])
	}
	return fmt.Sprintf("%s%v", v.kind, v.i[:v.lanes])
}

// kindOf returns the runtime kind of values of type t under precision p.
func kindOf(t codegen.Type, p codegen.Precision) valueKind {
	switch t {
	case codegen.TypeInt, codegen.TypeInt2, codegen.TypeInt4:
		return kindInt
	case codegen.TypeBool:
		return kindBool
	default:
		if p.IsHalf(t) {
			return kindHalf
		}
		return kindFloat
	}
}

// convert casts v to type t, broadcasting a scalar to the lanes of t.
func convert(v value, t codegen.Type, p codegen.Precision) (value, error) {
	lanes := t.Lanes()
	if v.lanes != lanes && v.lanes != 1 {
		return value{}, fmt.Errorf("cannot convert %s to %s", v, t)
	}
	out := value{kind: kindOf(t, p), lanes: lanes}
	for l := range lanes {
		switch out.kind {
		case kindInt:
			out.i[l] = v.int(l)
		case kindBool:
			if v.lane(l).truthy() {
				out.i[l] = 1
			}
		default:
			out.f[l] = v.float(l)
		}
	}
	if out.kind == kindHalf {
		out.roundHalf()
	}
	return out, nil
}

// promote returns the kind of a binary arithmetic result.
func promote(a, b value) valueKind {
	switch {
	case a.kind == kindFloat || b.kind == kindFloat:
		return kindFloat
	case a.kind == kindHalf || b.kind == kindHalf:
		return kindHalf
	default:
		return kindInt
	}
}

func binaryLanes(a, b value) (int, error) {
	switch {
	case a.lanes == b.lanes:
		return a.lanes, nil
	case a.lanes == 1:
		return b.lanes, nil
	case b.lanes == 1:
		return a.lanes, nil
	default:
		return 0, fmt.Errorf("lane mismatch between %s and %s", a, b)
	}
}

// binary applies op with C semantics: integer division truncates toward zero
// and half results are rounded after every operation.
func binary(op codegen.Op, a, b value) (value, error) {
	if op == codegen.OpAnd {
		return boolValue(a.truthy() && b.truthy()), nil
	}
	if op == codegen.OpOr {
		return boolValue(a.truthy() || b.truthy()), nil
	}
	lanes, err := binaryLanes(a, b)
	if err != nil {
		return value{}, err
	}
	kind := promote(a, b)

	switch op {
	case codegen.OpLT, codegen.OpLE, codegen.OpGT, codegen.OpGE, codegen.OpEQ, codegen.OpNE:
		if lanes != 1 {
			return value{}, fmt.Errorf("vector comparison %s %s %s", a, op, b)
		}
		var x, y float64
		if kind == kindInt {
			x, y = float64(a.int(0)), float64(b.int(0))
		} else {
			x, y = float64(a.float(0)), float64(b.float(0))
		}
		return boolValue(compare(op, x, y)), nil
	}

	out := value{kind: kind, lanes: lanes}
	for l := range lanes {
		if kind == kindInt {
			x, y := a.int(l), b.int(l)
			switch op {
			case codegen.OpAdd:
				out.i[l] = x + y
			case codegen.OpSub:
				out.i[l] = x - y
			case codegen.OpMul:
				out.i[l] = x * y
			case codegen.OpDiv, codegen.OpRem:
				if y == 0 {
					return value{}, fmt.Errorf("integer division by zero")
				}
				if op == codegen.OpDiv {
					out.i[l] = x / y
				} else {
					out.i[l] = x % y
				}
			default:
				return value{}, fmt.Errorf("unsupported integer operator %q", op)
			}
			continue
		}
		x, y := a.float(l), b.float(l)
		switch op {
		case codegen.OpAdd:
			out.f[l] = x + y
		case codegen.OpSub:
			out.f[l] = x - y
		case codegen.OpMul:
			out.f[l] = x * y
		case codegen.OpDiv:
			out.f[l] = x / y
		default:
			return value{}, fmt.Errorf("unsupported float operator %q", op)
		}
	}
	if kind == kindHalf {
		out.roundHalf()
	}
	return out, nil
}

func compare(op codegen.Op, x, y float64) bool {
	switch op {
	case codegen.OpLT:
		return x < y
	case codegen.OpLE:
		return x <= y
	case codegen.OpGT:
		return x > y
	case codegen.OpGE:
		return x >= y
	case codegen.OpEQ:
		return x == y
	default:
		return x != y
	}
}

// minMax applies min or max lane-wise with the promotion rules of binary.
func minMax(takeMax bool, a, b value) (value, error) {
	lanes, err := binaryLanes(a, b)
	if err != nil {
		return value{}, err
	}
	out := value{kind: promote(a, b), lanes: lanes}
	for l := range lanes {
		if out.kind == kindInt {
			x, y := a.int(l), b.int(l)
			if takeMax {
				out.i[l] = max(x, y)
			} else {
				out.i[l] = min(x, y)
			}
			continue
		}
		x, y := a.float(l), b.float(l)
		if takeMax {
			out.f[l] = max(x, y)
		} else {
			out.f[l] = min(x, y)
		}
	}
	if out.kind == kindHalf {
		out.roundHalf()
	}
	return out, nil
}
