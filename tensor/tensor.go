// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/convtex/internal/tensor"
)

// Vector and shape types.
type (
	// Int2 is an (x, y) pair, used for strides, dilations and padding.
	Int2 = tensor.Int2
	// Int3 is an (x, y, z) triple, used for grids, blocks and work groups.
	Int3 = tensor.Int3
	// Int4 is an (x, y, z, w) quadruple.
	Int4 = tensor.Int4
	// BHWC is the logical shape of an activation tensor.
	BHWC = tensor.BHWC
	// OHWI is the logical shape of convolution weights.
	OHWI = tensor.OHWI
	// Host is a BHWC float32 tensor in host memory.
	Host = tensor.Host
)

// DataType represents the element type stored in device memory.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float16 = tensor.Float16
)

// StorageType describes how a tensor is laid out in device memory.
type StorageType = tensor.StorageType

// Supported storage types.
const (
	Buffer       = tensor.Buffer
	ImageBuffer  = tensor.ImageBuffer
	Texture2D    = tensor.Texture2D
	Texture3D    = tensor.Texture3D
	TextureArray = tensor.TextureArray
)

// Layout is the logical element order of a tensor.
type Layout = tensor.Layout

// Supported layouts.
const (
	LayoutHWC  = tensor.LayoutHWC
	LayoutBHWC = tensor.LayoutBHWC
)

// Descriptor describes one tensor of an operation.
type Descriptor = tensor.Descriptor

// NewHost allocates a zero-filled host tensor.
func NewHost(shape BHWC) (*Host, error) {
	return tensor.NewHost(shape)
}

// ParseStorageType converts a storage name such as "texture_array" back to
// its StorageType.
func ParseStorageType(name string) (StorageType, bool) {
	return tensor.ParseStorageType(name)
}

// DivideRoundUp returns n/divisor rounded up.
func DivideRoundUp(n, divisor int) int {
	return tensor.DivideRoundUp(n, divisor)
}
