package gpu

import "github.com/born-ml/convtex/internal/codegen"

// LinkingContext names the epilogue variables a linked operation may use:
// the value being written and its destination coordinates.
type LinkingContext struct {
	Var string
	X   string
	Y   string
	Z   string
}

// LinkedOperation is an elementwise operation fused into another kernel's
// epilogue. link is the operation's position in the chain and keeps parameter
// names unique.
type LinkedOperation interface {
	// Params declares the extra kernel parameters, in binding order.
	Params(link int) []codegen.Param
	// Code returns the statements applied to ctx.Var before it is written.
	Code(link int, ctx LinkingContext) []codegen.Stmt
	// Bind sets the values of the parameters declared by Params.
	Bind(link int, args *Arguments) error
}

// LinkedParams concatenates the parameters of a chain of linked operations.
func LinkedParams(ops []LinkedOperation) []codegen.Param {
	var params []codegen.Param
	for i, op := range ops {
		params = append(params, op.Params(i)...)
	}
	return params
}

// LinkedCode concatenates the epilogue code of a chain of linked operations.
func LinkedCode(ops []LinkedOperation, ctx LinkingContext) []codegen.Stmt {
	var code []codegen.Stmt
	for i, op := range ops {
		code = append(code, op.Code(i, ctx)...)
	}
	return code
}

// BindLinked binds the arguments of a chain of linked operations.
func BindLinked(ops []LinkedOperation, args *Arguments) error {
	for i, op := range ops {
		if err := op.Bind(i, args); err != nil {
			return err
		}
	}
	return nil
}
