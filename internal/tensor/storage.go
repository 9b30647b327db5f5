package tensor

// StorageType describes how a tensor is laid out in device memory.
type StorageType int

// Supported storage types.
const (
	// Buffer is plain linear global memory.
	Buffer StorageType = iota
	// ImageBuffer is linear memory read through the image path (image1d_buffer_t).
	ImageBuffer
	// Texture2D packs slices along the texture height.
	Texture2D
	// Texture3D stores slices as the third texture coordinate.
	Texture3D
	// TextureArray stores slices as array layers.
	TextureArray
)

// String returns the storage type name.
func (s StorageType) String() string {
	switch s {
	case Buffer:
		return "buffer"
	case ImageBuffer:
		return "image_buffer"
	case Texture2D:
		return "texture_2d"
	case Texture3D:
		return "texture_3d"
	case TextureArray:
		return "texture_array"
	default:
		return "unknown"
	}
}

// IsImage reports whether reads go through the texture unit.
func (s StorageType) IsImage() bool {
	switch s {
	case ImageBuffer, Texture2D, Texture3D, TextureArray:
		return true
	default:
		return false
	}
}

// ParseStorageType converts a storage name back to its StorageType.
func ParseStorageType(name string) (StorageType, bool) {
	for _, s := range []StorageType{Buffer, ImageBuffer, Texture2D, Texture3D, TextureArray} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// Layout is the logical element order of a tensor.
type Layout int

// Supported layouts.
const (
	LayoutHWC Layout = iota
	LayoutBHWC
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutHWC:
		return "HWC"
	case LayoutBHWC:
		return "BHWC"
	default:
		return "unknown"
	}
}

// Descriptor describes one source or destination tensor of an operation.
type Descriptor struct {
	Storage  StorageType
	DataType DataType
	Layout   Layout
}
