package tensor

import "fmt"

// Host is a BHWC float32 tensor held in host memory.
type Host struct {
	Shape BHWC
	Data  []float32
}

// NewHost allocates a zero-filled host tensor.
func NewHost(shape BHWC) (*Host, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Host{Shape: shape, Data: make([]float32, shape.NumElements())}, nil
}

// At returns element (b, y, x, c).
func (h *Host) At(b, y, x, c int) float32 {
	return h.Data[h.Shape.LinearIndex(b, y, x, c)]
}

// Set stores element (b, y, x, c).
func (h *Host) Set(b, y, x, c int, v float32) {
	h.Data[h.Shape.LinearIndex(b, y, x, c)] = v
}

// Fill sets every element to f(b, y, x, c).
func (h *Host) Fill(f func(b, y, x, c int) float32) {
	for b := 0; b < h.Shape.B; b++ {
		for y := 0; y < h.Shape.H; y++ {
			for x := 0; x < h.Shape.W; x++ {
				for c := 0; c < h.Shape.C; c++ {
					h.Set(b, y, x, c, f(b, y, x, c))
				}
			}
		}
	}
}

// CheckShape returns an error if the tensor does not have the wanted shape.
func (h *Host) CheckShape(want BHWC) error {
	if h.Shape != want {
		return fmt.Errorf("shape mismatch: %v vs %v", h.Shape, want)
	}
	if len(h.Data) != want.NumElements() {
		return fmt.Errorf("data length %d does not match shape %v", len(h.Data), want)
	}
	return nil
}
