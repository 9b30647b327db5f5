package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPrecision is returned for a Precision outside F32, F16 and F32F16.
var ErrUnknownPrecision = errors.New("unknown calculations precision")

// Precision is the numeric mode of a kernel.
type Precision int

// Calculation precisions.
const (
	// F32 stores and accumulates in float.
	F32 Precision = iota
	// F16 stores and accumulates in half.
	F16
	// F32F16 stores in half and accumulates in float.
	F32F16
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case F32:
		return "f32"
	case F16:
		return "f16"
	case F32F16:
		return "f32_f16"
	default:
		return fmt.Sprintf("precision(%d)", int(p))
	}
}

// Validate returns ErrUnknownPrecision for values outside the enumeration.
func (p Precision) Validate() error {
	switch p {
	case F32, F16, F32F16:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownPrecision, int(p))
	}
}

// ParsePrecision converts a precision name back to its value.
func ParsePrecision(name string) (Precision, error) {
	for _, p := range []Precision{F32, F16, F32F16} {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPrecision, name)
}

// IsHalf reports whether values of type t are half precision under p.
func (p Precision) IsHalf(t Type) bool {
	switch t {
	case TypeFLT, TypeFLT4:
		return p == F16 || p == F32F16
	case TypeAccum4:
		return p == F16
	default:
		return false
	}
}

// Defines returns the preamble that binds FLT, ACCUM_FLT4 and the image
// intrinsics to concrete types for p, followed by the sampler declarations.
func Defines(p Precision) (string, error) {
	var b strings.Builder
	switch p {
	case F32:
		b.WriteString("#pragma OPENCL EXTENSION cl_khr_3d_image_writes : enable\n")
		b.WriteString("#define ACCUM_FLT4 float4\n")
		b.WriteString("#define FLT float\n")
		b.WriteString("#define FLT2 float2\n")
		b.WriteString("#define FLT3 float3\n")
		b.WriteString("#define FLT4 float4\n")
		b.WriteString("#define TO_FLT4 convert_float4\n")
		b.WriteString("#define TO_ACCUM_TYPE convert_float4\n")
		b.WriteString("#define TO_ACCUM_FLT convert_float\n")
		b.WriteString("#define READ_IMAGE read_imagef\n")
		b.WriteString("#define WRITE_IMAGE write_imagef\n")
	case F16:
		b.WriteString("#pragma OPENCL EXTENSION cl_khr_3d_image_writes : enable\n")
		b.WriteString("#pragma OPENCL EXTENSION cl_khr_fp16 : enable\n")
		b.WriteString("#define ACCUM_FLT4 half4\n")
		b.WriteString("#define FLT half\n")
		b.WriteString("#define FLT2 half2\n")
		b.WriteString("#define FLT3 half3\n")
		b.WriteString("#define FLT4 half4\n")
		b.WriteString("#define TO_FLT4 convert_half4\n")
		b.WriteString("#define TO_ACCUM_TYPE convert_half4\n")
		b.WriteString("#define TO_ACCUM_FLT convert_half\n")
		b.WriteString("#define READ_IMAGE read_imageh\n")
		b.WriteString("#define WRITE_IMAGE write_imageh\n")
	case F32F16:
		b.WriteString("#pragma OPENCL EXTENSION cl_khr_3d_image_writes : enable\n")
		b.WriteString("#pragma OPENCL EXTENSION cl_khr_fp16 : enable\n")
		b.WriteString("#define ACCUM_FLT4 float4\n")
		b.WriteString("#define FLT half\n")
		b.WriteString("#define FLT2 half2\n")
		b.WriteString("#define FLT3 half3\n")
		b.WriteString("#define FLT4 half4\n")
		b.WriteString("#define TO_FLT4 convert_half4\n")
		b.WriteString("#define TO_ACCUM_TYPE convert_float4\n")
		b.WriteString("#define TO_ACCUM_FLT convert_float\n")
		b.WriteString("#define READ_IMAGE read_imageh\n")
		b.WriteString("#define WRITE_IMAGE write_imageh\n")
	default:
		return "", p.Validate()
	}
	b.WriteString("const sampler_t smp_edge = CLK_NORMALIZED_COORDS_FALSE | CLK_ADDRESS_CLAMP_TO_EDGE | CLK_FILTER_NEAREST;\n")
	b.WriteString("const sampler_t smp_none = CLK_NORMALIZED_COORDS_FALSE | CLK_ADDRESS_NONE | CLK_FILTER_NEAREST;\n")
	b.WriteString("const sampler_t smp_zero = CLK_NORMALIZED_COORDS_FALSE | CLK_ADDRESS_CLAMP | CLK_FILTER_NEAREST;\n")
	return b.String(), nil
}
