package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convtex/internal/gpu"
)

type countingKernel struct {
	entry    string
	released atomic.Bool
}

func (k *countingKernel) EntryPoint() string { return k.entry }
func (k *countingKernel) Release()           { k.released.Store(true) }

type countingCompiler struct {
	calls atomic.Int32
	fail  error
}

func (c *countingCompiler) Compile(req gpu.CompileRequest) (gpu.Kernel, error) {
	c.calls.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return &countingKernel{entry: req.EntryPoint}, nil
}

func TestCache_CompilesOnce(t *testing.T) {
	compiler := &countingCompiler{}
	c, err := New(compiler, 4)
	require.NoError(t, err)

	req := gpu.CompileRequest{Source: "__kernel void main_function() {}", EntryPoint: "main_function"}
	k1, err := c.GetOrCreate(req)
	require.NoError(t, err)
	k2, err := c.GetOrCreate(req)
	require.NoError(t, err)

	assert.Same(t, k1, k2)
	assert.EqualValues(t, 1, compiler.calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestCache_Concurrent(t *testing.T) {
	compiler := &countingCompiler{}
	c, err := New(compiler, 4)
	require.NoError(t, err)

	req := gpu.CompileRequest{Source: "src", EntryPoint: "main_function"}
	var wg sync.WaitGroup
	kernels := make([]gpu.Kernel, 16)
	for i := range kernels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := c.GetOrCreate(req)
			assert.NoError(t, err)
			kernels[i] = k
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, compiler.calls.Load())
	for _, k := range kernels {
		assert.Same(t, kernels[0], k)
	}
}

func TestCache_KeyIncludesOptions(t *testing.T) {
	base := gpu.CompileRequest{Source: "src", EntryPoint: "main_function"}
	withOpt := base
	withOpt.Options = []gpu.CompilerOption{gpu.AdrenoFullSIMDLine}
	otherEntry := base
	otherEntry.EntryPoint = "other"

	assert.NotEqual(t, Key(base), Key(withOpt))
	assert.NotEqual(t, Key(base), Key(otherEntry))
	assert.Equal(t, Key(base), Key(gpu.CompileRequest{Source: "src", EntryPoint: "main_function"}))
}

func TestCache_CompileError(t *testing.T) {
	boom := errors.New("syntax error at line 3")
	compiler := &countingCompiler{fail: boom}
	c, err := New(compiler, 0)
	require.NoError(t, err)

	_, err = c.GetOrCreate(gpu.CompileRequest{Source: "bad", EntryPoint: "main_function"})
	require.Error(t, err)

	var compileErr *gpu.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "bad", compileErr.Source)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len(), "failures must not be cached")

	_, _ = c.GetOrCreate(gpu.CompileRequest{Source: "bad", EntryPoint: "main_function"})
	assert.EqualValues(t, 2, compiler.calls.Load())
}

func released(k gpu.Kernel) bool {
	return k.(*countingKernel).released.Load()
}

func TestCache_EvictionKeepsHeldKernels(t *testing.T) {
	c, err := New(&countingCompiler{}, 1)
	require.NoError(t, err)

	held, err := c.GetOrCreate(gpu.CompileRequest{Source: "a", EntryPoint: "main_function"})
	require.NoError(t, err)
	other, err := c.GetOrCreate(gpu.CompileRequest{Source: "b", EntryPoint: "main_function"})
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	assert.False(t, released(held), "evicted kernel released while still held")

	c.Release(held)
	assert.True(t, released(held))

	// An unheld kernel is released as soon as it is evicted.
	c.Release(other)
	assert.False(t, released(other))
	_, err = c.GetOrCreate(gpu.CompileRequest{Source: "c", EntryPoint: "main_function"})
	require.NoError(t, err)
	assert.True(t, released(other))
}

func TestCache_SharedReferences(t *testing.T) {
	c, err := New(&countingCompiler{}, 1)
	require.NoError(t, err)

	req := gpu.CompileRequest{Source: "a", EntryPoint: "main_function"}
	first, err := c.GetOrCreate(req)
	require.NoError(t, err)
	second, err := c.GetOrCreate(req)
	require.NoError(t, err)
	require.Same(t, first, second)

	_, err = c.GetOrCreate(gpu.CompileRequest{Source: "b", EntryPoint: "main_function"})
	require.NoError(t, err)
	c.Release(first)
	assert.False(t, released(first), "one holder remains")
	c.Release(second)
	assert.True(t, released(first))

	// Extra and foreign releases are ignored.
	c.Release(first)
	c.Release(&countingKernel{})
	c.Release(nil)
}

func TestCache_Purge(t *testing.T) {
	c, err := New(&countingCompiler{}, 4)
	require.NoError(t, err)

	held, err := c.GetOrCreate(gpu.CompileRequest{Source: "a", EntryPoint: "main_function"})
	require.NoError(t, err)
	idle, err := c.GetOrCreate(gpu.CompileRequest{Source: "b", EntryPoint: "main_function"})
	require.NoError(t, err)
	c.Release(idle)

	c.Purge()
	assert.Zero(t, c.Len())
	assert.True(t, released(idle))
	assert.False(t, released(held))

	c.Release(held)
	assert.True(t, released(held))
}
