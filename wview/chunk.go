// Package wview implements the zero-copy mutable edit tree (component
// G): a lazily parsed handle onto a serialized value whose subtree edits
// are O(subtree) and whose flatten is a single O(final size) pass. See
// node.go for the tree itself; this file defines the chunk storage and
// the three interchangeable allocation strategies chunks are built
// against.
package wview

import (
	"context"
	"sync"

	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/skiprope/sdval/internal/telemetry"
)

// metrics is the package-wide ambient telemetry sink, a Metrics with no
// counters (so every recording call is a no-op) until a caller opts in
// via SetMetrics — the same default-off
// pattern this package already follows for its containerd/log usage.
var metrics = &telemetry.Metrics{}

// SetMetrics installs m as the counter sink for every flatten and arena
// reset this package performs from then on.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// Chunk is a contiguous byte run shared between nodes: either an owned,
// writable buffer or a read-only slice borrowed from an external source.
// Both kinds are produced and retired through an Allocator.
type Chunk struct {
	data  []byte
	owned bool
	refs  int
}

// Bytes returns the chunk's bytes. Callers must not retain the slice
// past the chunk's lifetime under a refcounted Allocator.
func (c *Chunk) Bytes() []byte { return c.data }

// Len returns the number of bytes the chunk carries.
func (c *Chunk) Len() int { return len(c.data) }

// Owned reports whether the chunk owns a private, writable buffer as
// opposed to borrowing a read-only slice from elsewhere.
func (c *Chunk) Owned() bool { return c.owned }

// Allocator is the allocation-strategy trait every chunk is built
// against. The rest of wview is allocator-agnostic: reference-counted
// heap allocation, a global monotonic arena, and a thread-local
// monotonic arena all satisfy this interface identically except for
// HasRefcount and the cost model of Release.
type Allocator interface {
	// NewOwned copies data into a freshly allocated, writable chunk.
	NewOwned(data []byte) *Chunk
	// NewBorrowed wraps data, which the caller continues to own, in a
	// read-only chunk with no copy.
	NewBorrowed(data []byte) *Chunk
	// Retain increments c's reference count.
	Retain(c *Chunk)
	// Release decrements c's reference count. Under a refcounted
	// allocator this may free c's backing buffer; arena strategies never
	// reclaim per-chunk, only in bulk at Reset.
	Release(c *Chunk)
	// HasRefcount reports whether Release ever actually reclaims memory.
	HasRefcount() bool
	// ID distinguishes one allocator instance from another in logs and
	// metrics.
	ID() uuid.UUID
}

// refcountAllocator is the reference-counted heap strategy: every chunk
// is an independent allocation, retired when its count reaches zero.
type refcountAllocator struct {
	id uuid.UUID
}

// NewRefcountAllocator returns a heap-backed Allocator where every chunk
// is individually reference-counted and reclaimed as soon as its last
// reference is released.
func NewRefcountAllocator() Allocator {
	return &refcountAllocator{id: uuid.New()}
}

func (a *refcountAllocator) NewOwned(data []byte) *Chunk {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Chunk{data: buf, owned: true, refs: 1}
}

func (a *refcountAllocator) NewBorrowed(data []byte) *Chunk {
	return &Chunk{data: data, owned: false, refs: 1}
}

func (a *refcountAllocator) Retain(c *Chunk) {
	if c == nil {
		return
	}
	c.refs++
}

func (a *refcountAllocator) Release(c *Chunk) {
	if c == nil {
		return
	}
	c.refs--
	if c.refs <= 0 {
		c.data = nil
	}
}

func (a *refcountAllocator) HasRefcount() bool { return true }
func (a *refcountAllocator) ID() uuid.UUID     { return a.id }

// arenaAllocator is the monotonic-bump strategy shared by the global and
// thread-local arenas. Chunks are carved from a single growing buffer
// and are never individually freed; Reset reclaims everything at once.
type arenaAllocator struct {
	id     uuid.UUID
	mu     *sync.Mutex // non-nil only for the shared global instance
	buf    []byte
	chunks int
}

func newArena(shared bool) *arenaAllocator {
	a := &arenaAllocator{id: uuid.New()}
	if shared {
		a.mu = &sync.Mutex{}
	}
	return a
}

func (a *arenaAllocator) lock() {
	if a.mu != nil {
		a.mu.Lock()
	}
}

func (a *arenaAllocator) unlock() {
	if a.mu != nil {
		a.mu.Unlock()
	}
}

func (a *arenaAllocator) NewOwned(data []byte) *Chunk {
	a.lock()
	defer a.unlock()
	start := len(a.buf)
	a.buf = append(a.buf, data...)
	a.chunks++
	full := a.buf[start : start+len(data) : start+len(data)]
	return &Chunk{data: full, owned: true, refs: 1}
}

func (a *arenaAllocator) NewBorrowed(data []byte) *Chunk {
	a.lock()
	defer a.unlock()
	a.chunks++
	return &Chunk{data: data, owned: false, refs: 1}
}

// Retain and Release are no-ops: arena chunks live until Reset regardless
// of how many references point at them.
func (a *arenaAllocator) Retain(c *Chunk)  {}
func (a *arenaAllocator) Release(c *Chunk) {}

func (a *arenaAllocator) HasRefcount() bool { return false }
func (a *arenaAllocator) ID() uuid.UUID     { return a.id }

// Reset reclaims every chunk carved from a since the last reset. Callers
// must ensure no live wview tree still references a's chunks — per
// spec.md §5, the global arena is a per-process resource the host must
// reset only in a quiescent state.
func (a *arenaAllocator) Reset(ctx context.Context) {
	a.lock()
	defer a.unlock()
	log.G(ctx).
		WithField("arena", a.id.String()).
		WithField("bytes", len(a.buf)).
		WithField("chunks", a.chunks).
		Debug("wview: arena reset")
	metrics.ArenaChunksReclaimed(int64(a.chunks))
	a.buf = nil
	a.chunks = 0
}

var globalArena = newArena(true)

// GlobalArena returns the process-wide monotonic arena.
func GlobalArena() Allocator { return globalArena }

// ResetGlobalArena resets the process-wide monotonic arena, logging
// bytes and chunks reclaimed.
func ResetGlobalArena(ctx context.Context) { globalArena.Reset(ctx) }

// NewLocalArena returns a fresh monotonic arena intended for exclusive
// use by a single goroutine. Go has no compiler-enforced thread
// affinity; unlike GlobalArena, this instance takes no lock, so the
// caller is responsible for confining it to one goroutine.
func NewLocalArena() Allocator { return newArena(false) }

// ResetArena resets an arena Allocator previously returned by
// NewLocalArena (or GlobalArena, though ResetGlobalArena is clearer at
// call sites). It panics if alloc is not an arena.
func ResetArena(ctx context.Context, alloc Allocator) {
	a := alloc.(*arenaAllocator)
	a.Reset(ctx)
}
