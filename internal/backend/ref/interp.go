package ref

import (
	"errors"
	"fmt"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// errReturn unwinds a work item that executed a return statement.
var errReturn = errors.New("return")

var (
	components = map[string]int{"x": 0, "y": 1, "z": 2, "w": 3}
	// builtins maps supported builtin functions to their arity.
	builtins = map[string]int{"get_global_id": 1, "select": 3, "min": 2, "max": 2, "clamp": 3}
)

type variable struct {
	typ codegen.Type
	val value
}

type frame struct {
	vars  map[string]*variable
	alias map[string]string
}

// binding is the resolved value of one kernel parameter for a dispatch.
type binding struct {
	param codegen.Param
	image *Image
	value value
}

// machine executes one work item of a program.
type machine struct {
	prog   *codegen.Program
	macros map[string]*codegen.Macro
	params map[string]*binding
	gid    [3]int
	frames []frame
}

func (m *machine) push() {
	m.frames = append(m.frames, frame{vars: map[string]*variable{}})
}

func (m *machine) pop() {
	m.frames = m.frames[:len(m.frames)-1]
}

// resolve maps a macro parameter to the variable it was expanded with.
// Aliases are resolved at expansion time, so the innermost hit is final.
func (m *machine) resolve(name string) string {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if to, ok := m.frames[i].alias[name]; ok {
			return to
		}
	}
	return name
}

func (m *machine) lookup(name string) (*variable, bool) {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if v, ok := m.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (m *machine) declare(t codegen.Type, name string, v value) error {
	top := m.frames[len(m.frames)-1]
	if _, dup := top.vars[name]; dup {
		return fmt.Errorf("redeclaration of %q", name)
	}
	cv, err := convert(v, t, m.prog.Precision)
	if err != nil {
		return fmt.Errorf("declare %s %s: %w", t, name, err)
	}
	top.vars[name] = &variable{typ: t, val: cv}
	return nil
}

func (m *machine) run(gid [3]int) error {
	m.gid = gid
	m.frames = m.frames[:0]
	m.push()
	err := m.stmts(m.prog.Body)
	if errors.Is(err, errReturn) {
		return nil
	}
	return err
}

func (m *machine) stmts(list []codegen.Stmt) error {
	for _, s := range list {
		if err := m.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) scoped(list []codegen.Stmt) error {
	m.push()
	defer m.pop()
	return m.stmts(list)
}

func (m *machine) stmt(s codegen.Stmt) error {
	switch s := s.(type) {
	case codegen.Decl:
		v := value{kind: kindInt, lanes: 1}
		if s.Init != nil {
			var err error
			if v, err = m.expr(s.Init); err != nil {
				return err
			}
		}
		return m.declare(s.Type, s.Name, v)
	case codegen.Assign:
		name := m.resolve(s.Name)
		dst, ok := m.lookup(name)
		if !ok {
			return fmt.Errorf("assignment to undeclared %q", name)
		}
		rhs, err := m.expr(s.RHS)
		if err != nil {
			return err
		}
		switch s.Op {
		case "=":
		case "+=":
			if rhs, err = binary(codegen.OpAdd, dst.val, rhs); err != nil {
				return fmt.Errorf("%s += : %w", name, err)
			}
		default:
			return fmt.Errorf("unsupported assignment %q", s.Op)
		}
		cv, err := convert(rhs, dst.typ, m.prog.Precision)
		if err != nil {
			return fmt.Errorf("assign %s: %w", name, err)
		}
		dst.val = cv
		return nil
	case codegen.Incr:
		name := m.resolve(s.Name)
		v, ok := m.lookup(name)
		if !ok || v.val.kind != kindInt {
			return fmt.Errorf("increment of non-int %q", name)
		}
		v.val.i[0]++
		return nil
	case codegen.Return:
		return errReturn
	case codegen.If:
		cond, err := m.expr(s.Cond)
		if err != nil {
			return err
		}
		if cond.truthy() {
			return m.scoped(s.Body)
		}
		return nil
	case codegen.For:
		m.push()
		defer m.pop()
		if err := m.declare(codegen.TypeInt, s.Var, intValue(0)); err != nil {
			return err
		}
		counter, _ := m.lookup(s.Var)
		for {
			limit, err := m.expr(s.Limit)
			if err != nil {
				return err
			}
			if counter.val.i[0] >= limit.int(0) {
				return nil
			}
			if err := m.scoped(s.Body); err != nil {
				return err
			}
			counter.val.i[0]++
		}
	case codegen.Block:
		return m.scoped(s.Body)
	case codegen.Expand:
		return m.expand(s)
	case codegen.WriteTensor:
		return m.write(s)
	default:
		return fmt.Errorf("unsupported statement %T", s)
	}
}

func (m *machine) expand(s codegen.Expand) error {
	mac, ok := m.macros[s.Macro]
	if !ok {
		return fmt.Errorf("undefined macro %s", s.Macro)
	}
	if len(s.Args) != len(mac.Params) {
		return fmt.Errorf("macro %s takes %d arguments, got %d", s.Macro, len(mac.Params), len(s.Args))
	}
	alias := make(map[string]string, len(s.Args))
	for i, a := range s.Args {
		id, ok := a.(codegen.Ident)
		if !ok {
			return fmt.Errorf("macro %s argument %d must be an identifier", s.Macro, i)
		}
		alias[mac.Params[i]] = m.resolve(string(id))
	}
	m.frames = append(m.frames, frame{vars: map[string]*variable{}, alias: alias})
	defer m.pop()
	return m.stmts(mac.Body)
}

func (m *machine) param(name string) (*binding, bool) {
	b, ok := m.params[name]
	return b, ok
}

func (m *machine) exprs(list []codegen.Expr) ([]value, error) {
	out := make([]value, len(list))
	for i, e := range list {
		v, err := m.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *machine) ints(list ...codegen.Expr) ([]int, error) {
	vals, err := m.exprs(list)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		if v.lanes != 1 || v.isFloat() {
			return nil, fmt.Errorf("coordinate %s is not an int", v)
		}
		out[i] = v.i[0]
	}
	return out, nil
}

func (m *machine) expr(e codegen.Expr) (value, error) {
	switch e := e.(type) {
	case codegen.Ident:
		name := m.resolve(string(e))
		if v, ok := m.lookup(name); ok {
			return v.val, nil
		}
		if b, ok := m.param(name); ok && b.param.Kind == codegen.ParamScalar {
			return b.value, nil
		}
		return value{}, fmt.Errorf("undefined identifier %q", name)
	case codegen.IntLit:
		return intValue(int(e)), nil
	case codegen.FloatLit:
		return floatValue(kindFloat, float32(e)), nil
	case codegen.Field:
		x, err := m.expr(e.X)
		if err != nil {
			return value{}, err
		}
		l, ok := components[e.Name]
		if !ok || l >= x.lanes {
			return value{}, fmt.Errorf("no component .%s in %s", e.Name, x)
		}
		return x.lane(l), nil
	case codegen.Binary:
		x, err := m.expr(e.X)
		if err != nil {
			return value{}, err
		}
		y, err := m.expr(e.Y)
		if err != nil {
			return value{}, err
		}
		return binary(e.Op, x, y)
	case codegen.Paren:
		return m.expr(e.X)
	case codegen.Call:
		return m.call(e)
	case codegen.Cast:
		x, err := m.expr(e.X)
		if err != nil {
			return value{}, err
		}
		return convert(x, e.Type, m.prog.Precision)
	case codegen.Convert:
		x, err := m.expr(e.X)
		if err != nil {
			return value{}, err
		}
		if x.lanes != e.Type.Lanes() {
			return value{}, fmt.Errorf("convert of %s to %s changes width", x, e.Type)
		}
		return convert(x, e.Type, m.prog.Precision)
	case codegen.VecLit:
		elems, err := m.exprs(e.Elems)
		if err != nil {
			return value{}, err
		}
		if len(elems) != e.Type.Lanes() {
			return value{}, fmt.Errorf("%s literal with %d elements", e.Type, len(elems))
		}
		v := value{kind: kindFloat, lanes: len(elems)}
		for l, el := range elems {
			v.f[l] = el.float(0)
			v.i[l] = el.int(0)
		}
		if !elems[0].isFloat() {
			v.kind = kindInt
		}
		return convert(v, e.Type, m.prog.Precision)
	case codegen.ReadTensor:
		img, err := m.image(e.Tensor)
		if err != nil {
			return value{}, err
		}
		c, err := m.ints(e.X, e.Y, e.S)
		if err != nil {
			return value{}, err
		}
		return m.texel(img.Texel(c[0], c[1], c[2])), nil
	case codegen.ReadLinear:
		img, err := m.image(e.Tensor)
		if err != nil {
			return value{}, err
		}
		c, err := m.ints(e.Addr)
		if err != nil {
			return value{}, err
		}
		return m.texel(img.Linear(c[0])), nil
	case codegen.ReadImage2D:
		img, err := m.image(e.Image)
		if err != nil {
			return value{}, err
		}
		c, err := m.ints(e.X, e.Y)
		if err != nil {
			return value{}, err
		}
		return m.texel(img.Texel(c[0], c[1], 0)), nil
	default:
		return value{}, fmt.Errorf("unsupported expression %T", e)
	}
}

// texel wraps a fetched texel as an FLT4 value.
func (m *machine) texel(t [4]float32) value {
	return floatValue(kindOf(codegen.TypeFLT4, m.prog.Precision), t[:]...)
}

func (m *machine) image(name string) (*Image, error) {
	b, ok := m.param(name)
	if !ok || b.image == nil {
		return nil, fmt.Errorf("%q is not a memory parameter", name)
	}
	return b.image, nil
}

func (m *machine) call(e codegen.Call) (value, error) {
	args, err := m.exprs(e.Args)
	if err != nil {
		return value{}, err
	}
	want, ok := builtins[e.Func]
	if !ok {
		return value{}, fmt.Errorf("unknown builtin %s", e.Func)
	}
	if len(args) != want {
		return value{}, fmt.Errorf("%s takes %d arguments, got %d", e.Func, want, len(args))
	}
	switch e.Func {
	case "get_global_id":
		dim := args[0].int(0)
		if dim < 0 || dim > 2 {
			return value{}, fmt.Errorf("get_global_id(%d)", dim)
		}
		return intValue(m.gid[dim]), nil
	case "select":
		if args[2].truthy() {
			return args[1], nil
		}
		return args[0], nil
	case "min":
		return minMax(false, args[0], args[1])
	case "max":
		return minMax(true, args[0], args[1])
	default:
		lo, err := minMax(true, args[0], args[1])
		if err != nil {
			return value{}, err
		}
		return minMax(false, lo, args[2])
	}
}

func (m *machine) write(s codegen.WriteTensor) error {
	img, err := m.image(s.Tensor)
	if err != nil {
		return err
	}
	v, err := m.expr(s.Value)
	if err != nil {
		return err
	}
	if v.lanes != 4 {
		return fmt.Errorf("write of %s to %s", v, s.Tensor)
	}
	c, err := m.ints(s.X, s.Y, s.S)
	if err != nil {
		return err
	}
	return img.Store(c[0], c[1], c[2], v.texel())
}

// bindParams resolves a complete argument list into per-name bindings.
func bindParams(prog *codegen.Program, args *gpu.Arguments) (map[string]*binding, error) {
	if err := args.Complete(); err != nil {
		return nil, err
	}
	if args.Len() != len(prog.Params) {
		return nil, &gpu.BindError{Index: args.Len(), Err: gpu.ErrArgumentsIncomplete}
	}
	out := make(map[string]*binding, args.Len())
	for i := range args.Len() {
		arg := args.At(i)
		prm := prog.Params[i]
		if arg.Param.Name != prm.Name {
			return nil, &gpu.BindError{Index: i, Name: arg.Param.Name, Err: gpu.ErrArgumentOrder}
		}
		b := &binding{param: prm}
		if prm.Kind == codegen.ParamScalar {
			v, err := scalarValue(arg.Value, prm.Type, prog.Precision)
			if err != nil {
				return nil, &gpu.BindError{Index: i, Name: prm.Name, Err: err}
			}
			b.value = v
		} else {
			img, ok := arg.Memory.(*Image)
			if !ok {
				return nil, &gpu.BindError{Index: i, Name: prm.Name, Err: fmt.Errorf("%w: %T is not reference memory", gpu.ErrArgumentType, arg.Memory)}
			}
			if err := img.live(); err != nil {
				return nil, &gpu.BindError{Index: i, Name: prm.Name, Err: err}
			}
			b.image = img
		}
		out[prm.Name] = b
	}
	return out, nil
}

func scalarValue(v any, t codegen.Type, p codegen.Precision) (value, error) {
	var raw value
	switch v := v.(type) {
	case int:
		raw = intValue(v)
	case tensor.Int2:
		raw = intValue(v.X, v.Y)
	case tensor.Int4:
		raw = intValue(v.X, v.Y, v.Z, v.W)
	case float32:
		raw = floatValue(kindFloat, v)
	default:
		return value{}, fmt.Errorf("%w: unsupported scalar %T", gpu.ErrArgumentType, v)
	}
	if raw.lanes != t.Lanes() {
		return value{}, fmt.Errorf("%w: %s given %d lanes", gpu.ErrArgumentType, t, raw.lanes)
	}
	return convert(raw, t, p)
}
