// Package elementwise provides pointwise operations that fuse into the
// epilogue of another kernel.
package elementwise

import (
	"strconv"

	cg "github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
)

func scalar(name string, link int) cg.Param {
	return cg.Param{Name: name + strconv.Itoa(link), Kind: cg.ParamScalar, Type: cg.TypeFLT}
}

// ReLU computes max(v, min(v, 0) * Alpha), clamped to Clip when Clip is
// non-zero. Alpha zero is a plain ReLU.
type ReLU struct {
	Alpha float32
	Clip  float32
}

var _ gpu.LinkedOperation = ReLU{}

// Params declares the alpha and clip scalars that are non-zero.
func (r ReLU) Params(link int) []cg.Param {
	var params []cg.Param
	if r.Alpha != 0 {
		params = append(params, scalar("relu_alpha", link))
	}
	if r.Clip != 0 {
		params = append(params, scalar("relu_clip", link))
	}
	return params
}

// Code clamps ctx.Var below at zero, or at min(v, 0)*alpha when alpha is set,
// and above at clip when clip is set.
func (r ReLU) Code(link int, ctx gpu.LinkingContext) []cg.Stmt {
	v := cg.Id(ctx.Var)
	var floor cg.Expr = cg.Cast{Type: cg.TypeFLT, X: cg.FloatLit(0)}
	if r.Alpha != 0 {
		floor = cg.Mul(cg.Fn("min", v, floor), cg.Id(scalar("relu_alpha", link).Name))
	}
	if r.Clip != 0 {
		return []cg.Stmt{cg.Set(ctx.Var, cg.Fn("clamp", v, floor, cg.Id(scalar("relu_clip", link).Name)))}
	}
	return []cg.Stmt{cg.Set(ctx.Var, cg.Fn("max", v, floor))}
}

// Bind sets the scalars declared by Params.
func (r ReLU) Bind(link int, args *gpu.Arguments) error {
	if r.Alpha != 0 {
		if err := args.SetFloat(scalar("relu_alpha", link).Name, r.Alpha); err != nil {
			return err
		}
	}
	if r.Clip != 0 {
		return args.SetFloat(scalar("relu_clip", link).Name, r.Clip)
	}
	return nil
}

// Apply is the host form of the operation.
func (r ReLU) Apply(v float32) float32 {
	floor := float32(0)
	if r.Alpha != 0 {
		floor = min(v, 0) * r.Alpha
	}
	if r.Clip != 0 {
		return min(max(v, floor), r.Clip)
	}
	return max(v, floor)
}

// MulAdd computes v*Mul + Add.
type MulAdd struct {
	Mul float32
	Add float32
}

var _ gpu.LinkedOperation = MulAdd{}

// Params declares the multiplier and addend scalars.
func (m MulAdd) Params(link int) []cg.Param {
	return []cg.Param{scalar("mul_add_mul", link), scalar("mul_add_add", link)}
}

// Code rewrites ctx.Var as ctx.Var*mul + add.
func (m MulAdd) Code(link int, ctx gpu.LinkingContext) []cg.Stmt {
	return []cg.Stmt{cg.Set(ctx.Var, cg.Add(
		cg.Mul(cg.Id(ctx.Var), cg.Id(scalar("mul_add_mul", link).Name)),
		cg.Id(scalar("mul_add_add", link).Name),
	))}
}

// Bind sets the multiplier and addend.
func (m MulAdd) Bind(link int, args *gpu.Arguments) error {
	if err := args.SetFloat(scalar("mul_add_mul", link).Name, m.Mul); err != nil {
		return err
	}
	return args.SetFloat(scalar("mul_add_add", link).Name, m.Add)
}

// Apply is the host form of the operation.
func (m MulAdd) Apply(v float32) float32 {
	return v*m.Mul + m.Add
}
