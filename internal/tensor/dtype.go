// Package tensor provides the shape, layout and storage descriptors shared by the
// kernel generator, the operators and the device backends.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DataType represents the element type stored in device memory.
type DataType int

// Supported data types for device storage.
const (
	Float32 DataType = iota
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// Round returns v as it would read back after being stored with this data type.
func (dt DataType) Round(v float32) float32 {
	if dt == Float16 {
		return float16.Fromfloat32(v).Float32()
	}
	return v
}

// Encode packs values into little-endian device bytes of the given data type.
func Encode(dt DataType, values []float32) ([]byte, error) {
	switch dt {
	case Float32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case Float16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor: cannot encode data type %d", int(dt))
	}
}

// Decode unpacks little-endian device bytes of the given data type.
func Decode(dt DataType, data []byte) ([]float32, error) {
	switch dt {
	case Float32:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("tensor: float32 payload of %d bytes is not 4-byte aligned", len(data))
		}
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case Float16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("tensor: float16 payload of %d bytes is not 2-byte aligned", len(data))
		}
		out := make([]float32, len(data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[i*2:])).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor: cannot decode data type %d", int(dt))
	}
}
