// Package cache provides a bounded, concurrency-safe compile cache.
package cache

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/born-ml/convtex/internal/gpu"
)

// DefaultSize is the number of kernels kept when New is given a non-positive size.
const DefaultSize = 128

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache compiles each distinct request once and hands out the same kernel to
// later callers. Concurrent requests for the same key share one compile.
//
// Every kernel returned by GetOrCreate carries a reference that the caller
// gives back with Release. An evicted or purged kernel is released once its
// last reference is given back.
type Cache struct {
	compiler gpu.Compiler
	size     int
	group    singleflight.Group

	mu      sync.Mutex
	kernels *lru.Cache[uint64, gpu.Kernel]
	refs    map[gpu.Kernel]*entry

	hits   atomic.Uint64
	misses atomic.Uint64
}

// entry tracks the holders of one kernel.
type entry struct {
	refs    int
	evicted bool
}

var _ gpu.CompileCache = (*Cache)(nil)

// New returns a cache in front of compiler holding at most size kernels.
func New(compiler gpu.Compiler, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	// Eviction happens in insert, under mu.
	kernels, err := lru.New[uint64, gpu.Kernel](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{
		compiler: compiler,
		size:     size,
		kernels:  kernels,
		refs:     make(map[gpu.Kernel]*entry),
	}, nil
}

// Key hashes the identity of a compile request: source, entry point and options.
func Key(req gpu.CompileRequest) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(req.EntryPoint)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(req.Source)
	var opt [8]byte
	for _, o := range req.Options {
		binary.LittleEndian.PutUint64(opt[:], uint64(o))
		_, _ = d.Write(opt[:])
	}
	return d.Sum64()
}

// GetOrCreate returns the cached kernel for req, compiling it on a miss.
// Compiler failures are returned as *gpu.CompileError and are not cached.
// The returned kernel holds a reference that must be given back with Release.
func (c *Cache) GetOrCreate(req gpu.CompileRequest) (gpu.Kernel, error) {
	key := Key(req)
	if k, ok := c.acquire(key); ok {
		c.hits.Add(1)
		return k, nil
	}
	for {
		_, err, _ := c.group.Do(fmt.Sprintf("%016x", key), func() (any, error) {
			if c.contains(key) {
				return nil, nil
			}
			c.misses.Add(1)
			k, err := c.compiler.Compile(req)
			if err != nil {
				return nil, &gpu.CompileError{Entry: req.EntryPoint, Source: req.Source, Err: err}
			}
			c.insert(key, k)
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		if k, ok := c.acquire(key); ok {
			return k, nil
		}
		// Evicted between the compile and the lookup; compile again.
	}
}

// Release gives back one reference obtained from GetOrCreate. Kernels this
// cache did not hand out are ignored.
func (c *Cache) Release(k gpu.Kernel) {
	if k == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.refs[k]
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs == 0 && e.evicted {
		delete(c.refs, k)
		k.Release()
	}
}

func (c *Cache) contains(key uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernels.Contains(key)
}

// acquire looks key up and takes a reference on a hit.
func (c *Cache) acquire(key uint64) (gpu.Kernel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.kernels.Get(key)
	if !ok {
		return nil, false
	}
	c.refs[k].refs++
	return k, true
}

// insert adds a freshly compiled kernel, evicting the least recently used one
// when full.
func (c *Cache) insert(key uint64, k gpu.Kernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.kernels.Len() >= c.size {
		_, old, ok := c.kernels.RemoveOldest()
		if !ok {
			break
		}
		c.retire(old)
	}
	c.kernels.Add(key, k)
	c.refs[k] = &entry{}
}

// retire releases k now if nobody holds it, or marks it for release by its
// last holder. Callers hold mu.
func (c *Cache) retire(k gpu.Kernel) {
	e := c.refs[k]
	if e == nil || e.refs == 0 {
		delete(c.refs, k)
		k.Release()
		return
	}
	e.evicted = true
}

// Len returns the number of cached kernels.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernels.Len()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Purge drops every cached kernel. Kernels still held are released when
// their last holder gives them back.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.kernels.Keys() {
		if k, ok := c.kernels.Peek(key); ok {
			c.retire(k)
		}
	}
	c.kernels.Purge()
}
