package convtex

import (
	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// NeedStrideCorrection reports whether batched tensors folded into width need
// the per-lane batch/position split to apply a horizontal stride.
func NeedStrideCorrection(def gpu.OperationDef, stride tensor.Int2) bool {
	return def.BatchSupport && stride.X != 1
}

// UseFP16SIMD reports whether the compiler should be asked for full-width half
// SIMD lines. Only Adreno 3xx running 1x1 kernels in pure F16 qualifies.
func UseFP16SIMD(device gpu.DeviceInfo, precision codegen.Precision, is1x1 bool) (bool, error) {
	if err := precision.Validate(); err != nil {
		return false, &gpu.ConfigurationError{Field: "precision", Details: err.Error(), Err: gpu.ErrUnsupportedPrecision}
	}
	if !device.IsAdreno() {
		return false, nil
	}
	switch precision {
	case codegen.F16:
		return device.IsAdreno3xx() && is1x1, nil
	default:
		return false, nil
	}
}

// UseAdreno4xxOptimization reports whether the 1x1 fast path applies: unit
// stride, zero padding, an Adreno 4xx, texture-array storage and F16.
// padding is the kernel-side offset (the negated prepended padding).
func UseAdreno4xxOptimization(device gpu.DeviceInfo, def gpu.OperationDef, stride, padding tensor.Int2) bool {
	return stride.X == 1 && stride.Y == 1 &&
		padding.X == 0 && padding.Y == 0 &&
		device.IsAdreno4xx() &&
		def.PrimaryStorageType() == tensor.TextureArray &&
		def.Precision == codegen.F16
}

// samplerFor returns the cheapest sampler that still reads zero outside the
// image on the given device.
func samplerFor(device gpu.DeviceInfo) codegen.Sampler {
	if device.IsAdreno3xx() {
		return codegen.SamplerNone
	}
	return codegen.SamplerZero
}
