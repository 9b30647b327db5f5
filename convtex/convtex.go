// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package convtex

import (
	"github.com/born-ml/convtex/internal/codegen"
	internal "github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/elementwise"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/gpu/cache"
	"github.com/born-ml/convtex/internal/logger"
	"github.com/born-ml/convtex/tensor"
)

// Operation types.
type (
	// ConvTexture is a compiled-once, dispatched-many 2D convolution.
	ConvTexture = internal.ConvTexture
	// Convolution2DAttributes are the static parameters of a convolution.
	Convolution2DAttributes = internal.Convolution2DAttributes
	// Weights is a host OHWI filter tensor.
	Weights = internal.Weights
	// Padding2D is the zero padding before and after the spatial axes.
	Padding2D = internal.Padding2D
	// CreationContext bundles the device collaborators of an operation.
	CreationContext = internal.CreationContext
	// Option configures a ConvTexture.
	Option = internal.Option
	// TuningParameters carries what a work group search needs.
	TuningParameters = internal.TuningParameters
	// TuningType selects how hard Tune searches.
	TuningType = internal.TuningType
)

// Tuning strategies.
const (
	TuningFast       = internal.TuningFast
	TuningExhaustive = internal.TuningExhaustive
)

// Device model.
type (
	// DeviceInfo is the capability set of a compute device.
	DeviceInfo = gpu.DeviceInfo
	// Vendor identifies the GPU vendor family.
	Vendor = gpu.Vendor
	// OperationDef is the numeric mode and tensor storage of an operation.
	OperationDef = gpu.OperationDef
	// Context creates device memory.
	Context = gpu.Context
	// Executor dispatches and measures compiled kernels.
	Executor = gpu.Executor
	// Compiler turns generated kernels into device kernels.
	Compiler = gpu.Compiler
	// CompileCache returns a compiled kernel for a request.
	CompileCache = gpu.CompileCache
	// Tensor is a device tensor bound as a source or destination.
	Tensor = gpu.Tensor
	// LinkedOperation is an elementwise operation fused into the epilogue.
	LinkedOperation = gpu.LinkedOperation
	// Logger is the structured logger operations report through.
	Logger = logger.Logger
)

// Precision is the calculation precision of a kernel.
type Precision = codegen.Precision

// Supported precisions.
const (
	F32    = codegen.F32
	F16    = codegen.F16
	F32F16 = codegen.F32F16
)

// Linked elementwise operations.
type (
	// ReLU computes max(v, min(v, 0)*Alpha), clamped to Clip when non-zero.
	ReLU = elementwise.ReLU
	// MulAdd computes v*Mul + Add.
	MulAdd = elementwise.MulAdd
)

// Cache is a bounded compile cache.
type Cache = cache.Cache

// Error types.
type (
	ConfigurationError = gpu.ConfigurationError
	AllocationError    = gpu.AllocationError
	CompileError       = gpu.CompileError
	BindError          = gpu.BindError
	DispatchError      = gpu.DispatchError
	TuneError          = gpu.TuneError
)

// Sentinel errors.
var (
	ErrNotCompiled          = gpu.ErrNotCompiled
	ErrMissingTensor        = gpu.ErrMissingTensor
	ErrNoWorkGroup          = gpu.ErrNoWorkGroup
	ErrUnsupportedPrecision = gpu.ErrUnsupportedPrecision
	ErrUnsupportedStorage   = gpu.ErrUnsupportedStorage
	ErrInvalidBlockSize     = gpu.ErrInvalidBlockSize
)

// Create builds a ConvTexture and uploads its filters and bias. The
// operation still needs Compile before use.
func Create(cc CreationContext, def OperationDef, attr Convolution2DAttributes, opts ...Option) (*ConvTexture, error) {
	return internal.Create(cc, def, attr, opts...)
}

// OutputShape returns the destination shape of convolving src with attr.
func OutputShape(src tensor.BHWC, attr Convolution2DAttributes) tensor.BHWC {
	return internal.OutputShape(src, attr)
}

// WithBlockSize sets the output tile each work item computes.
func WithBlockSize(b tensor.Int3) Option { return internal.WithBlockSize(b) }

// WithWorkGroupSize sets the work group used until Tune picks one.
func WithWorkGroupSize(wg tensor.Int3) Option { return internal.WithWorkGroupSize(wg) }

// WithLinked fuses elementwise operations into the kernel epilogue.
func WithLinked(ops ...LinkedOperation) Option { return internal.WithLinked(ops...) }

// WithLogger sets the logger for compile and tune decisions.
func WithLogger(l Logger) Option { return internal.WithLogger(l) }

// ParseTuningType converts a strategy name ("fast", "exhaustive") to its value.
func ParseTuningType(name string) (TuningType, error) {
	return internal.ParseTuningType(name)
}

// ParsePrecision converts a precision name ("f32", "f16", "f32_f16") to its value.
func ParsePrecision(name string) (Precision, error) {
	return codegen.ParsePrecision(name)
}

// ParseDeviceInfo derives a capability set from driver vendor and renderer strings.
func ParseDeviceInfo(vendor, renderer string) DeviceInfo {
	return gpu.ParseDeviceInfo(vendor, renderer)
}

// NewCache returns a compile cache in front of compiler holding at most size
// kernels. A non-positive size selects the default.
func NewCache(compiler Compiler, size int) (*Cache, error) {
	return cache.New(compiler, size)
}

// Heuristics.
var (
	// NeedStrideCorrection reports whether batched, x-strided sources need
	// the batch-aware x coordinate.
	NeedStrideCorrection = internal.NeedStrideCorrection
	// UseFP16SIMD reports whether the full-SIMD half compiler option applies.
	UseFP16SIMD = internal.UseFP16SIMD
	// UseAdreno4xxOptimization reports whether the fast-path kernel applies.
	UseAdreno4xxOptimization = internal.UseAdreno4xxOptimization
)
