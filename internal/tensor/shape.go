package tensor

import "fmt"

// Int2 is a 2D integer vector used for kernel size, stride, dilation and padding.
type Int2 struct {
	X, Y int
}

// Int3 is a 3D integer vector used for block sizes, grids and work groups.
type Int3 struct {
	X, Y, Z int
}

// Int4 is a 4D integer vector used for tensor extents (width, height, channels, slices).
type Int4 struct {
	X, Y, Z, W int
}

func (v Int2) String() string { return fmt.Sprintf("(%d, %d)", v.X, v.Y) }
func (v Int3) String() string { return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z) }
func (v Int4) String() string { return fmt.Sprintf("(%d, %d, %d, %d)", v.X, v.Y, v.Z, v.W) }

// Product returns X * Y * Z.
func (v Int3) Product() int {
	return v.X * v.Y * v.Z
}

// Positive reports whether every component is at least 1.
func (v Int3) Positive() bool {
	return v.X >= 1 && v.Y >= 1 && v.Z >= 1
}

// DivideRoundUp returns ceil(n / divisor) for non-negative n and positive divisor.
func DivideRoundUp(n, divisor int) int {
	return (n + divisor - 1) / divisor
}

// AlignByN rounds n up to the next multiple of alignment.
func AlignByN(n, alignment int) int {
	return DivideRoundUp(n, alignment) * alignment
}

// DivideRoundUp3 applies DivideRoundUp component-wise.
func DivideRoundUp3(n, divisor Int3) Int3 {
	return Int3{
		X: DivideRoundUp(n.X, divisor.X),
		Y: DivideRoundUp(n.Y, divisor.Y),
		Z: DivideRoundUp(n.Z, divisor.Z),
	}
}

// AlignByN3 applies AlignByN component-wise.
func AlignByN3(n, alignment Int3) Int3 {
	return Int3{
		X: AlignByN(n.X, alignment.X),
		Y: AlignByN(n.Y, alignment.Y),
		Z: AlignByN(n.Z, alignment.Z),
	}
}

// BHWC is the logical shape of an activation tensor.
type BHWC struct {
	B, H, W, C int
}

// Depth returns the number of 4-channel slices.
func (s BHWC) Depth() int {
	return DivideRoundUp(s.C, 4)
}

// NumElements returns the total number of scalar elements.
func (s BHWC) NumElements() int {
	return s.B * s.H * s.W * s.C
}

// LinearIndex returns the row-major offset of element (b, y, x, c).
func (s BHWC) LinearIndex(b, y, x, c int) int {
	return ((b*s.H+y)*s.W+x)*s.C + c
}

// Validate checks that every dimension is positive.
func (s BHWC) Validate() error {
	if s.B <= 0 || s.H <= 0 || s.W <= 0 || s.C <= 0 {
		return fmt.Errorf("invalid BHWC shape %v (all dimensions must be > 0)", s)
	}
	return nil
}

// OHWI is the logical shape of convolution weights.
type OHWI struct {
	O, H, W, I int
}

// NumElements returns the total number of scalar elements.
func (s OHWI) NumElements() int {
	return s.O * s.H * s.W * s.I
}

// LinearIndex returns the row-major offset of element (o, y, x, i).
func (s OHWI) LinearIndex(o, y, x, i int) int {
	return ((o*s.H+y)*s.W+x)*s.I + i
}

// Validate checks that every dimension is positive.
func (s OHWI) Validate() error {
	if s.O <= 0 || s.H <= 0 || s.W <= 0 || s.I <= 0 {
		return fmt.Errorf("invalid OHWI shape %v (all dimensions must be > 0)", s)
	}
	return nil
}
