package gpu

import (
	"fmt"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/tensor"
)

// Argument is one bound kernel argument. Memory parameters carry Memory;
// scalar parameters carry Value as int, tensor.Int2, tensor.Int4 or float32.
type Argument struct {
	Param  codegen.Param
	Memory Memory
	Value  any
}

// Arguments accumulates a typed argument list against a kernel's parameter
// declaration. Values must be set in declaration order; the finished list is
// handed to an Executor as a whole.
type Arguments struct {
	params []codegen.Param
	args   []Argument
}

// NewArguments starts an empty argument list for params.
func NewArguments(params []codegen.Param) *Arguments {
	return &Arguments{
		params: params,
		args:   make([]Argument, 0, len(params)),
	}
}

// Next returns the parameter the next Set call must bind.
func (a *Arguments) Next() (codegen.Param, bool) {
	if len(a.args) >= len(a.params) {
		return codegen.Param{}, false
	}
	return a.params[len(a.args)], true
}

// SetMemory binds a memory object to the named tensor or image parameter.
func (a *Arguments) SetMemory(name string, m Memory) error {
	prm, err := a.expect(name)
	if err != nil {
		return err
	}
	want, err := expectedKind(prm)
	if err != nil {
		return a.bindError(name, err)
	}
	if m == nil {
		return a.bindError(name, fmt.Errorf("%w: nil memory", ErrArgumentType))
	}
	if m.Kind() != want {
		return a.bindError(name, fmt.Errorf("%w: want %s memory, got %s", ErrArgumentType, want, m.Kind()))
	}
	a.args = append(a.args, Argument{Param: prm, Memory: m})
	return nil
}

// SetInt binds an int parameter.
func (a *Arguments) SetInt(name string, v int) error {
	return a.setScalar(name, v, codegen.TypeInt)
}

// SetInt2 binds an int2 parameter.
func (a *Arguments) SetInt2(name string, v tensor.Int2) error {
	return a.setScalar(name, v, codegen.TypeInt2)
}

// SetInt4 binds an int4 parameter.
func (a *Arguments) SetInt4(name string, v tensor.Int4) error {
	return a.setScalar(name, v, codegen.TypeInt4)
}

// SetFloat binds a float or FLT parameter.
func (a *Arguments) SetFloat(name string, v float32) error {
	return a.setScalar(name, v, codegen.TypeFloat, codegen.TypeFLT)
}

func (a *Arguments) setScalar(name string, v any, accepted ...codegen.Type) error {
	prm, err := a.expect(name)
	if err != nil {
		return err
	}
	if prm.Kind != codegen.ParamScalar {
		return a.bindError(name, fmt.Errorf("%w: %s expects memory", ErrArgumentType, name))
	}
	ok := false
	for _, t := range accepted {
		if prm.Type == t {
			ok = true
		}
	}
	if !ok {
		return a.bindError(name, fmt.Errorf("%w: declared %s, got %T", ErrArgumentType, prm.Type, v))
	}
	a.args = append(a.args, Argument{Param: prm, Value: v})
	return nil
}

func (a *Arguments) expect(name string) (codegen.Param, error) {
	prm, ok := a.Next()
	if !ok {
		return codegen.Param{}, a.bindError(name, fmt.Errorf("%w: all %d parameters already bound", ErrArgumentOrder, len(a.params)))
	}
	if prm.Name != name {
		return codegen.Param{}, a.bindError(name, fmt.Errorf("%w: expected %q", ErrArgumentOrder, prm.Name))
	}
	return prm, nil
}

func (a *Arguments) bindError(name string, err error) error {
	return &BindError{Index: len(a.args), Name: name, Err: err}
}

// Complete returns an error unless every declared parameter is bound.
func (a *Arguments) Complete() error {
	if prm, ok := a.Next(); ok {
		return &BindError{Index: len(a.args), Name: prm.Name, Err: ErrArgumentsIncomplete}
	}
	return nil
}

// Len returns the number of bound arguments.
func (a *Arguments) Len() int {
	return len(a.args)
}

// At returns the i-th bound argument.
func (a *Arguments) At(i int) Argument {
	return a.args[i]
}

// Lookup returns the bound argument with the given parameter name.
func (a *Arguments) Lookup(name string) (Argument, bool) {
	for _, arg := range a.args {
		if arg.Param.Name == name {
			return arg, true
		}
	}
	return Argument{}, false
}

// Names returns the bound parameter names in order.
func (a *Arguments) Names() []string {
	names := make([]string, len(a.args))
	for i, arg := range a.args {
		names[i] = arg.Param.Name
	}
	return names
}
