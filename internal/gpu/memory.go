package gpu

import (
	"fmt"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/tensor"
)

// MemoryKind is the device object type behind a Memory handle.
type MemoryKind int

// Memory kinds.
const (
	MemoryBuffer MemoryKind = iota
	MemoryImageBuffer
	MemoryImage2D
	MemoryImage2DArray
	MemoryImage3D
)

// String returns the memory kind name.
func (k MemoryKind) String() string {
	switch k {
	case MemoryBuffer:
		return "buffer"
	case MemoryImageBuffer:
		return "image1d_buffer"
	case MemoryImage2D:
		return "image2d"
	case MemoryImage2DArray:
		return "image2d_array"
	case MemoryImage3D:
		return "image3d"
	default:
		return "unknown"
	}
}

// MemoryKindFor returns the memory kind that backs a tensor stored as s.
func MemoryKindFor(s tensor.StorageType) (MemoryKind, error) {
	switch s {
	case tensor.Buffer:
		return MemoryBuffer, nil
	case tensor.ImageBuffer:
		return MemoryImageBuffer, nil
	case tensor.Texture2D:
		return MemoryImage2D, nil
	case tensor.TextureArray:
		return MemoryImage2DArray, nil
	case tensor.Texture3D:
		return MemoryImage3D, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedStorage, int(s))
	}
}

// Memory is a device allocation that can be bound as a kernel argument.
type Memory interface {
	Kind() MemoryKind
	Release()
}

// Texture2D is an RGBA 2D image.
type Texture2D interface {
	Memory
	Width() int
	Height() int
}

// TextureDesc describes a 2D RGBA texture to create.
type TextureDesc struct {
	DataType tensor.DataType
	Width    int
	Height   int
}

// Tensor is an activation tensor supplied to an operation per dispatch.
// Width seen by kernels is Shape().W * Shape().B.
type Tensor interface {
	Shape() tensor.BHWC
	Descriptor() tensor.Descriptor
	Memory() Memory
}

// Context creates device resources.
type Context interface {
	// CreateTexture2D uploads data (Width*Height RGBA texels encoded as DataType).
	CreateTexture2D(desc TextureDesc, data []byte) (Texture2D, error)
}

// LinearStorageCreateInfo describes a per-channel vector to upload.
type LinearStorageCreateInfo struct {
	DataType tensor.DataType
	// AlignedSize is the logical element count; storage holds ceil(AlignedSize/4) texels.
	AlignedSize int
}

// LinearStorage is a per-channel vector stored as a one-row RGBA texture.
type LinearStorage struct {
	Texture Texture2D
	Depth   int
}

// Release frees the underlying texture.
func (l *LinearStorage) Release() {
	if l != nil && l.Texture != nil {
		l.Texture.Release()
		l.Texture = nil
	}
}

// CreateLinearStorage zero-pads values to whole texels and uploads them.
func CreateLinearStorage(ctx Context, info LinearStorageCreateInfo, values []float32) (*LinearStorage, error) {
	if info.AlignedSize <= 0 {
		return nil, &AllocationError{Resource: "linear storage", Err: fmt.Errorf("invalid size %d", info.AlignedSize)}
	}
	depth := tensor.DivideRoundUp(info.AlignedSize, 4)
	padded := make([]float32, depth*4)
	copy(padded, values)
	data, err := tensor.Encode(info.DataType, padded)
	if err != nil {
		return nil, &AllocationError{Resource: "linear storage", Err: err}
	}
	tex, err := ctx.CreateTexture2D(TextureDesc{DataType: info.DataType, Width: depth, Height: 1}, data)
	if err != nil {
		return nil, &AllocationError{Resource: "linear storage", Err: err}
	}
	return &LinearStorage{Texture: tex, Depth: depth}, nil
}

// SizeOf returns the int4 extents kernels see for t: (W*B, H, C, slices).
func SizeOf(t Tensor) tensor.Int4 {
	s := t.Shape()
	return tensor.Int4{X: s.W * s.B, Y: s.H, Z: s.C, W: s.Depth()}
}

// expectedKind returns the memory kind a parameter accepts.
func expectedKind(prm codegen.Param) (MemoryKind, error) {
	switch prm.Kind {
	case codegen.ParamImage2D:
		return MemoryImage2D, nil
	case codegen.ParamTensor:
		return MemoryKindFor(prm.Storage)
	default:
		return 0, fmt.Errorf("%w: %s is a scalar parameter", ErrArgumentType, prm.Name)
	}
}
