package elementwise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cg "github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
)

func names(params []cg.Param) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name
	}
	return out
}

func TestReLU_Params(t *testing.T) {
	assert.Empty(t, ReLU{}.Params(0))
	assert.Equal(t, []string{"relu_alpha2"}, names(ReLU{Alpha: 0.1}.Params(2)))
	assert.Equal(t, []string{"relu_alpha1", "relu_clip1"}, names(ReLU{Alpha: 0.1, Clip: 6}.Params(1)))
	for _, p := range (ReLU{Clip: 6}).Params(0) {
		assert.Equal(t, cg.ParamScalar, p.Kind)
		assert.Equal(t, cg.TypeFLT, p.Type)
	}
}

func TestReLU_Code(t *testing.T) {
	ctx := gpu.LinkingContext{Var: "res", X: "xc", Y: "yc", Z: "Z"}
	prog := func(ops ...gpu.LinkedOperation) string {
		p := &cg.Program{
			Precision: cg.F32,
			Entry:     "main_function",
			Params:    gpu.LinkedParams(ops),
			Body: append([]cg.Stmt{
				cg.Let(cg.TypeFLT4, "res", cg.VecLit{Type: cg.TypeFLT4, Elems: []cg.Expr{cg.FloatLit(1), cg.FloatLit(-1), cg.FloatLit(2), cg.FloatLit(0)}}),
			}, gpu.LinkedCode(ops, ctx)...),
		}
		src, err := cg.PrintCL(p)
		require.NoError(t, err)
		return src
	}

	assert.Contains(t, prog(ReLU{}), "res = max(res, (FLT)(0.0f));")
	assert.Contains(t, prog(ReLU{Clip: 6}), "res = clamp(res, (FLT)(0.0f), relu_clip0);")
	assert.Contains(t, prog(ReLU{Alpha: 0.5}), "res = max(res, min(res, (FLT)(0.0f)) * relu_alpha0);")
	assert.Contains(t, prog(MulAdd{Mul: 2}, ReLU{Alpha: 0.5}), "res = max(res, min(res, (FLT)(0.0f)) * relu_alpha1);")
}

func TestReLU_Apply(t *testing.T) {
	tests := []struct {
		op   ReLU
		in   float32
		want float32
	}{
		{ReLU{}, -2, 0},
		{ReLU{}, 3, 3},
		{ReLU{Alpha: 0.5}, -2, -1},
		{ReLU{Clip: 6}, 10, 6},
		{ReLU{Alpha: 0.25, Clip: 1}, -4, -1},
		{ReLU{Alpha: 0.25, Clip: 1}, 0.5, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.Apply(tt.in), "%+v(%v)", tt.op, tt.in)
	}
}

func TestBind(t *testing.T) {
	ops := []gpu.LinkedOperation{ReLU{Alpha: 0.5, Clip: 6}, MulAdd{Mul: 2, Add: -1}}
	args := gpu.NewArguments(gpu.LinkedParams(ops))
	require.NoError(t, gpu.BindLinked(ops, args))
	require.NoError(t, args.Complete())

	assert.Equal(t, []string{"relu_alpha0", "relu_clip0", "mul_add_mul1", "mul_add_add1"}, args.Names())
	got, ok := args.Lookup("mul_add_add1")
	require.True(t, ok)
	assert.Equal(t, float32(-1), got.Value)
}

func TestBind_WrongOrder(t *testing.T) {
	ops := []gpu.LinkedOperation{MulAdd{Mul: 2, Add: 1}, ReLU{Alpha: 0.5}}
	// Params declared for a different chain order.
	args := gpu.NewArguments(gpu.LinkedParams([]gpu.LinkedOperation{ops[1], ops[0]}))
	assert.ErrorIs(t, gpu.BindLinked(ops, args), gpu.ErrArgumentOrder)
}

func TestMulAdd(t *testing.T) {
	m := MulAdd{Mul: 3, Add: 0.5}
	assert.Equal(t, float32(6.5), m.Apply(2))
	assert.Equal(t, []string{"mul_add_mul4", "mul_add_add4"}, names(m.Params(4)))
}
