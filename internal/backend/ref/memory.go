package ref

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

var errReleased = errors.New("memory already released")

// Image is a host-resident RGBA allocation of width x height x depth texels,
// stored depth-major then row-major. Every stored value is rounded to the
// image data type.
type Image struct {
	kind     gpu.MemoryKind
	dataType tensor.DataType
	width    int
	height   int
	depth    int
	texels   []float32
	released atomic.Bool
}

var (
	_ gpu.Memory    = (*Image)(nil)
	_ gpu.Texture2D = (*Image)(nil)
)

func newImage(kind gpu.MemoryKind, dt tensor.DataType, width, height, depth int) *Image {
	return &Image{
		kind:     kind,
		dataType: dt,
		width:    width,
		height:   height,
		depth:    depth,
		texels:   make([]float32, width*height*depth*4),
	}
}

// Kind returns the device object type.
func (m *Image) Kind() gpu.MemoryKind { return m.kind }

// Release marks the image unusable by later dispatches. The texels stay
// allocated so reads racing with Release stay in bounds.
func (m *Image) Release() { m.released.Store(true) }

// Width returns the texel count per row.
func (m *Image) Width() int { return m.width }

// Height returns the row count per layer.
func (m *Image) Height() int { return m.height }

// Depth returns the layer count.
func (m *Image) Depth() int { return m.depth }

// DataType returns the element type values are rounded to.
func (m *Image) DataType() tensor.DataType { return m.dataType }

func (m *Image) live() error {
	if m.released.Load() {
		return errReleased
	}
	return nil
}

// Texel returns texel (x, y, z), or zeros outside the image.
func (m *Image) Texel(x, y, z int) [4]float32 {
	if x < 0 || y < 0 || z < 0 || x >= m.width || y >= m.height || z >= m.depth {
		return [4]float32{}
	}
	return m.Linear((z*m.height+y)*m.width + x)
}

// Linear returns the texel at a linear address, or zeros outside the image.
func (m *Image) Linear(addr int) [4]float32 {
	var t [4]float32
	if addr < 0 || addr*4 >= len(m.texels) {
		return t
	}
	copy(t[:], m.texels[addr*4:addr*4+4])
	return t
}

// Store writes texel (x, y, z).
func (m *Image) Store(x, y, z int, v [4]float32) error {
	if x < 0 || y < 0 || z < 0 || x >= m.width || y >= m.height || z >= m.depth {
		return fmt.Errorf("write at (%d, %d, %d) outside %dx%dx%d image", x, y, z, m.width, m.height, m.depth)
	}
	if err := m.live(); err != nil {
		return err
	}
	at := ((z*m.height+y)*m.width + x) * 4
	for l, f := range v {
		m.texels[at+l] = m.dataType.Round(f)
	}
	return nil
}

// Tensor is a device tensor of the reference device. Batch is folded into
// width: element (b, y, x, c) lives in texel (x*B + b, y, c/4), lane c%4.
type Tensor struct {
	shape tensor.BHWC
	desc  tensor.Descriptor
	mem   *Image
}

var _ gpu.Tensor = (*Tensor)(nil)

// Shape returns the logical shape.
func (t *Tensor) Shape() tensor.BHWC { return t.shape }

// Descriptor returns the storage descriptor.
func (t *Tensor) Descriptor() tensor.Descriptor { return t.desc }

// Memory returns the backing image.
func (t *Tensor) Memory() gpu.Memory { return t.mem }

// Image returns the backing image.
func (t *Tensor) Image() *Image { return t.mem }

// Release frees the backing image.
func (t *Tensor) Release() { t.mem.Release() }
