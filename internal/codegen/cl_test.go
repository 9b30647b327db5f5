package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convtex/internal/tensor"
)

func copyProgram(p Precision, src, dst tensor.StorageType) *Program {
	return &Program{
		Precision: p,
		Entry:     "copy",
		Macros: []Macro{{
			Name:   "TWICE",
			Params: []string{"R"},
			Body:   []Stmt{AddTo("R", Id("R")), Incr{Name: "n"}},
		}},
		Params: []Param{
			{Name: "src", Kind: ParamTensor, Storage: src, SizeName: "size"},
			{Name: "dst", Kind: ParamTensor, Storage: dst, SizeName: "size", Access: AccessWrite},
			{Name: "size", Kind: ParamScalar, Type: TypeInt4},
		},
		Body: []Stmt{
			Let(TypeInt, "X", Fn("get_global_id", Int(0))),
			If{Cond: Ge(Id("X"), Dot(Id("size"), "x")), Body: []Stmt{Return{}}},
			Let(TypeInt, "n", Int(0)),
			For{Var: "s", Limit: Dot(Id("size"), "w"), Body: []Stmt{
				Let(TypeFLT4, "v", ReadTensor{Tensor: "src", X: Id("X"), Y: Int(0), S: Id("s")}),
				Expand{Macro: "TWICE", Args: []Expr{Id("v")}},
				WriteTensor{Tensor: "dst", Value: Id("v"), X: Id("X"), Y: Int(0), S: Id("s")},
			}},
		},
	}
}

func TestPrintCL_Golden(t *testing.T) {
	src, err := PrintCL(copyProgram(F32, tensor.TextureArray, tensor.Buffer))
	require.NoError(t, err)

	defines, err := Defines(F32)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(src, defines))

	want := `#define TWICE(R) \
R += R; \
n++;
__kernel void copy(
    __read_only image2d_array_t src,
    __global FLT4* dst,
    int4 size
) {
  int X = get_global_id(0);
  if (X >= size.x) {
    return;
  }
  int n = 0;
  for (int s = 0; s < size.w; ++s) {
    FLT4 v = READ_IMAGE(src, smp_zero, (int4)(X, 0, s, 0));
    TWICE(v);
    dst[(s * size.y + 0) * size.x + X] = v;
  }
}
`
	if diff := cmp.Diff(want, strings.TrimPrefix(src, defines)); diff != "" {
		t.Errorf("PrintCL mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintCL_Storages(t *testing.T) {
	tests := []struct {
		storage tensor.StorageType
		decl    string
		read    string
		write   string
	}{
		{tensor.Texture2D, "__read_only image2d_t src", "READ_IMAGE(src, smp_zero, (int2)(X, 0 * size.w + s))", "WRITE_IMAGE(dst, (int2)(X, 0 * size.w + s), v)"},
		{tensor.Texture3D, "__read_only image3d_t src", "READ_IMAGE(src, smp_zero, (int4)(X, 0, s, 0))", "WRITE_IMAGE(dst, (int4)(X, 0, s, 0), v)"},
		{tensor.ImageBuffer, "__read_only image1d_buffer_t src", "READ_IMAGE(src, (s * size.y + 0) * size.x + X)", "WRITE_IMAGE(dst, (s * size.y + 0) * size.x + X, v)"},
		{tensor.Buffer, "__global FLT4* src", "src[(s * size.y + 0) * size.x + X]", "dst[(s * size.y + 0) * size.x + X] = v"},
	}
	for _, tt := range tests {
		t.Run(tt.storage.String(), func(t *testing.T) {
			src, err := PrintCL(copyProgram(F16, tt.storage, tt.storage))
			require.NoError(t, err)
			assert.Contains(t, src, tt.decl)
			assert.Contains(t, src, tt.read)
			assert.Contains(t, src, tt.write)
		})
	}
}

func TestPrintCL_Expressions(t *testing.T) {
	p := &Program{
		Precision: F32F16,
		Entry:     "k",
		Params:    []Param{{Name: "img", Kind: ParamImage2D}},
		Body: []Stmt{
			Let(TypeAccum4, "acc", VecLit{Type: TypeAccum4, Elems: []Expr{FloatLit(0), FloatLit(0.5), FloatLit(-2), FloatLit(1e-3)}}),
			Let(TypeFLT4, "f", ReadImage2D{Image: "img", X: Add(Id("Z"), Int(1)), Y: Int(0)}),
			Set("acc", Convert{Type: TypeAccum4, X: Id("f")}),
			Let(TypeInt, "a", Fn("select", Int(-1), Mul(P(Add(Id("x"), Int(1))), Int(3)), P(And(Lt(Id("x"), Int(2)), Ge(Id("x"), Int(0)))))),
			Let(TypeBool, "b", Or(Lt(Id("a"), Int(0)), Ge(Rem(Id("a"), Int(4)), Div(Id("a"), Int(2))))),
			Set("f", Cast{Type: TypeFLT, X: FloatLit(3)}),
			Block{Body: []Stmt{Var(TypeInt2, "c")}},
		},
	}
	src, err := PrintCL(p)
	require.NoError(t, err)
	for _, line := range []string{
		"  ACCUM_FLT4 acc = (ACCUM_FLT4)(0.0f, 0.5f, -2.0f, 0.001f);\n",
		"  FLT4 f = READ_IMAGE(img, smp_none, (int2)(Z + 1, 0));\n",
		"  acc = TO_ACCUM_TYPE(f);\n",
		"  int a = select(-1, (x + 1) * 3, (x < 2 && x >= 0));\n",
		"  bool b = a < 0 || a % 4 >= a / 2;\n",
		"  f = (FLT)(3.0f);\n",
		"  {\n    int2 c;\n  }\n",
	} {
		assert.Contains(t, src, line)
	}
}

func TestPrintCL_Errors(t *testing.T) {
	t.Run("unknown precision", func(t *testing.T) {
		p := copyProgram(Precision(3), tensor.Texture2D, tensor.Texture2D)
		_, err := PrintCL(p)
		assert.ErrorIs(t, err, ErrUnknownPrecision)
	})

	t.Run("read of a scalar", func(t *testing.T) {
		p := copyProgram(F32, tensor.Texture2D, tensor.Texture2D)
		p.Body = append(p.Body, Let(TypeFLT4, "w", ReadTensor{Tensor: "size", X: Int(0), Y: Int(0), S: Int(0)}))
		_, err := PrintCL(p)
		assert.Error(t, err)
	})

	t.Run("linear read of a texture", func(t *testing.T) {
		p := copyProgram(F32, tensor.Texture2D, tensor.Texture2D)
		p.Body = append(p.Body, Let(TypeFLT4, "w", ReadLinear{Tensor: "src", Addr: Int(0)}))
		_, err := PrintCL(p)
		assert.Error(t, err)
	})
}

func TestPrecision(t *testing.T) {
	for _, p := range []Precision{F32, F16, F32F16} {
		got, err := ParsePrecision(strings.ToUpper(p.String()))
		require.NoError(t, err)
		assert.Equal(t, p, got)
		require.NoError(t, p.Validate())
	}
	_, err := ParsePrecision("f64")
	assert.ErrorIs(t, err, ErrUnknownPrecision)
	assert.ErrorIs(t, Precision(-1).Validate(), ErrUnknownPrecision)

	assert.False(t, F32.IsHalf(TypeFLT4))
	assert.True(t, F16.IsHalf(TypeAccum4))
	assert.True(t, F32F16.IsHalf(TypeFLT))
	assert.False(t, F32F16.IsHalf(TypeAccum4))
	assert.False(t, F16.IsHalf(TypeFloat4))
}

func TestDefines(t *testing.T) {
	f32, err := Defines(F32)
	require.NoError(t, err)
	assert.Contains(t, f32, "#define FLT4 float4\n")
	assert.NotContains(t, f32, "cl_khr_fp16")

	mixed, err := Defines(F32F16)
	require.NoError(t, err)
	assert.Contains(t, mixed, "#pragma OPENCL EXTENSION cl_khr_fp16 : enable\n")
	assert.Contains(t, mixed, "#define ACCUM_FLT4 float4\n")
	assert.Contains(t, mixed, "#define FLT4 half4\n")
	assert.Contains(t, mixed, "const sampler_t smp_zero = CLK_NORMALIZED_COORDS_FALSE | CLK_ADDRESS_CLAMP | CLK_FILTER_NEAREST;\n")

	half, err := Defines(F16)
	require.NoError(t, err)
	assert.Contains(t, half, "#define ACCUM_FLT4 half4\n")
}

func TestProgram_Params(t *testing.T) {
	p := copyProgram(F32, tensor.Texture2D, tensor.Texture2D)
	assert.Equal(t, []string{"src", "dst", "size"}, p.ParamNames())
	prm, ok := p.Param("size")
	require.True(t, ok)
	assert.Equal(t, TypeInt4, prm.Type)
	_, ok = p.Param("missing")
	assert.False(t, ok)
}
