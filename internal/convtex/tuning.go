package convtex

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// TuningType selects how hard Tune searches.
type TuningType int

// Tuning strategies.
const (
	// TuningFast derives a work group from the grid without measuring.
	TuningFast TuningType = iota
	// TuningExhaustive measures every candidate and keeps the fastest.
	TuningExhaustive
)

// String returns the strategy name.
func (t TuningType) String() string {
	switch t {
	case TuningFast:
		return "fast"
	case TuningExhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("tuning(%d)", int(t))
	}
}

// ParseTuningType converts a strategy name back to its value.
func ParseTuningType(name string) (TuningType, error) {
	switch name {
	case "fast", "":
		return TuningFast, nil
	case "exhaustive":
		return TuningExhaustive, nil
	default:
		return 0, fmt.Errorf("unknown tuning type %q", name)
	}
}

// TuningParameters carries what a work group search needs.
type TuningParameters struct {
	Executor gpu.Executor
	Device   gpu.DeviceInfo
	Type     TuningType
}

// floorPow2 returns the largest power of two not above n, or 1.
func floorPow2(n int) int {
	if n < 1 {
		return 1
	}
	return 1 << (bits.Len(uint(n)) - 1)
}

// ceilPow2 returns the smallest power of two not below n.
func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// fastWorkGroup picks a work group that covers the grid without measuring:
// up to 4 slices deep, then as wide and tall as the device allows.
func fastWorkGroup(grid tensor.Int3, device gpu.DeviceInfo) tensor.Int3 {
	limit, total := device.WorkGroupLimits()

	z := floorPow2(min(grid.Z, 4, limit.Z))
	x := floorPow2(min(ceilPow2(grid.X), 8, limit.X, total/z))
	y := floorPow2(min(ceilPow2(grid.Y), limit.Y, total/(x*z)))
	return tensor.Int3{X: x, Y: y, Z: z}
}

// workGroupCandidates enumerates power-of-two work groups within device limits
// that do not exceed the next power of two of any grid axis.
func workGroupCandidates(grid tensor.Int3, device gpu.DeviceInfo) []tensor.Int3 {
	limit, total := device.WorkGroupLimits()
	maxX := min(ceilPow2(grid.X), limit.X)
	maxY := min(ceilPow2(grid.Y), limit.Y)
	maxZ := min(ceilPow2(grid.Z), limit.Z)

	var out []tensor.Int3
	for z := 1; z <= maxZ; z *= 2 {
		for y := 1; y <= maxY; y *= 2 {
			for x := 1; x <= maxX; x *= 2 {
				if x*y*z <= total {
					out = append(out, tensor.Int3{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return out
}

// pickWorkGroup runs the search selected by params over grid.
func pickWorkGroup(params TuningParameters, k gpu.Kernel, args *gpu.Arguments, grid tensor.Int3) (tensor.Int3, error) {
	if params.Type == TuningFast {
		return fastWorkGroup(grid, params.Device), nil
	}
	if params.Executor == nil {
		return tensor.Int3{}, &gpu.TuneError{Grid: grid, Err: errors.New("no executor to measure with")}
	}
	candidates := workGroupCandidates(grid, params.Device)
	if len(candidates) == 0 {
		return tensor.Int3{}, &gpu.TuneError{Grid: grid, Err: gpu.ErrNoWorkGroup}
	}

	var (
		best     tensor.Int3
		bestTime time.Duration
		found    bool
		errs     []error
	)
	for _, wg := range candidates {
		d, err := params.Executor.Measure(k, args, grid, wg)
		if err != nil {
			errs = append(errs, fmt.Errorf("work group %v: %w", wg, err))
			continue
		}
		if !found || d < bestTime {
			best, bestTime, found = wg, d, true
		}
	}
	if !found {
		return tensor.Int3{}, &gpu.TuneError{
			Grid:       grid,
			Candidates: len(candidates),
			Err:        errors.Join(append([]error{gpu.ErrNoWorkGroup}, errs...)...),
		}
	}
	return best, nil
}
