package convtex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cg "github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

func TestPow2(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 2, 7: 4, 8: 8, 9: 8} {
		assert.Equal(t, want, floorPow2(n), "floor %d", n)
	}
	for n, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 8: 8, 9: 16} {
		assert.Equal(t, want, ceilPow2(n), "ceil %d", n)
	}
}

func TestFastWorkGroup(t *testing.T) {
	tests := []struct {
		grid tensor.Int3
		want tensor.Int3
	}{
		{tensor.Int3{X: 9, Y: 3, Z: 5}, tensor.Int3{X: 8, Y: 4, Z: 4}},
		{tensor.Int3{X: 1, Y: 1, Z: 1}, tensor.Int3{X: 1, Y: 1, Z: 1}},
		{tensor.Int3{X: 100, Y: 100, Z: 2}, tensor.Int3{X: 8, Y: 16, Z: 2}},
		{tensor.Int3{X: 3, Y: 200, Z: 1}, tensor.Int3{X: 4, Y: 64, Z: 1}},
	}
	for _, tt := range tests {
		wg := fastWorkGroup(tt.grid, mali)
		assert.Equal(t, tt.want, wg, "grid %v", tt.grid)
		assert.LessOrEqual(t, wg.Product(), gpu.DefaultMaxWorkGroupInvocations)
	}

	small := gpu.DeviceInfo{MaxWorkGroupSize: tensor.Int3{X: 4, Y: 4, Z: 1}, MaxWorkGroupInvocations: 8}
	assert.Equal(t, tensor.Int3{X: 4, Y: 2, Z: 1}, fastWorkGroup(tensor.Int3{X: 64, Y: 64, Z: 8}, small))
}

func TestWorkGroupCandidates(t *testing.T) {
	small := gpu.DeviceInfo{MaxWorkGroupSize: tensor.Int3{X: 4, Y: 4, Z: 2}, MaxWorkGroupInvocations: 16}
	candidates := workGroupCandidates(tensor.Int3{X: 3, Y: 100, Z: 1}, small)
	assert.Equal(t, []tensor.Int3{
		{X: 1, Y: 1, Z: 1}, {X: 2, Y: 1, Z: 1}, {X: 4, Y: 1, Z: 1},
		{X: 1, Y: 2, Z: 1}, {X: 2, Y: 2, Z: 1}, {X: 4, Y: 2, Z: 1},
		{X: 1, Y: 4, Z: 1}, {X: 2, Y: 4, Z: 1}, {X: 4, Y: 4, Z: 1},
	}, candidates)
}

func TestTune(t *testing.T) {
	t.Run("fast", func(t *testing.T) {
		f := newFixture(t, mali)
		op := compiledOp(t, f)
		require.NoError(t, op.Tune(TuningParameters{Device: mali, Type: TuningFast}))
		assert.Equal(t, fastWorkGroup(op.GridSize(), mali), op.WorkGroupSize())
	})

	t.Run("exhaustive", func(t *testing.T) {
		f := newFixture(t, mali)
		op := compiledOp(t, f)
		require.NoError(t, op.Tune(TuningParameters{Executor: f.dev, Device: f.dev.Info(), Type: TuningExhaustive}))

		// The chosen group is the cheapest candidate under the device's cost model.
		args, err := op.BindArguments()
		require.NoError(t, err)
		grid := op.GridSize()
		best, err := f.dev.Measure(op.kernel, args, grid, op.WorkGroupSize())
		require.NoError(t, err)
		for _, wg := range workGroupCandidates(grid, f.dev.Info()) {
			d, err := f.dev.Measure(op.kernel, args, grid, wg)
			require.NoError(t, err)
			assert.LessOrEqual(t, best, d, "%v beats the tuned %v", wg, op.WorkGroupSize())
		}
		require.NoError(t, op.AddToQueue(f.dev))
	})

	t.Run("failure keeps work group", func(t *testing.T) {
		f := newFixture(t, mali)
		op := compiledOp(t, f)
		boom := errors.New("timer unavailable")

		err := op.Tune(TuningParameters{Executor: failingExecutor{err: boom}, Device: mali, Type: TuningExhaustive})
		var tuneErr *gpu.TuneError
		require.ErrorAs(t, err, &tuneErr)
		assert.ErrorIs(t, err, gpu.ErrNoWorkGroup)
		assert.ErrorIs(t, err, boom)
		assert.Positive(t, tuneErr.Candidates)
		assert.Equal(t, DefaultWorkGroupSize, op.WorkGroupSize())
	})

	t.Run("no executor", func(t *testing.T) {
		f := newFixture(t, mali)
		op := compiledOp(t, f)
		var tuneErr *gpu.TuneError
		require.ErrorAs(t, op.Tune(TuningParameters{Device: mali, Type: TuningExhaustive}), &tuneErr)
		assert.Equal(t, DefaultWorkGroupSize, op.WorkGroupSize())
	})

	t.Run("not compiled", func(t *testing.T) {
		f := newFixture(t, mali)
		op, err := Create(f.cc, definition(cg.F32, tensor.TextureArray, tensor.TextureArray, false), unitAttr(4, 1, 1, 4))
		require.NoError(t, err)
		defer op.Release()
		assert.ErrorIs(t, op.Tune(TuningParameters{Device: mali}), gpu.ErrNotCompiled)
	})
}

func TestParseTuningType(t *testing.T) {
	for _, tt := range []TuningType{TuningFast, TuningExhaustive} {
		got, err := ParseTuningType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}
	_, err := ParseTuningType("thorough")
	assert.Error(t, err)
}
