// Package slab is a concrete implementation of the slab-interface contract
// the item layer depends on: class sizing by geometric growth factor,
// per-class free lists, page (generation) growth, and page-level refcount
// mirroring.
//
// Item storage treats slab internals as an external collaborator: the item
// layer calls through a narrow contract (class sizing, get/put a chunk,
// mirror a refcount) and does not care how chunks are actually backed. This
// package is one concrete answer. Its shape is grounded in the teacher's
// internal/genring
// package: a "page" here plays the role the teacher's "generation" played —
// a single arena-backed buffer carved into fixed-size pieces, grown on
// demand and never individually reclaimed. The TTL-driven rotation genring
// used for cache entries has no equivalent here (slab chunks don't expire;
// only items do, lazily, in pkg/item), so it is dropped; the growth-on-
// demand idea is kept.
//
// Concurrency: like the teacher's genring, this package assumes external
// synchronisation. pkg/store serialises every call with its own lock.
//
// © 2025 itemkernel authors. MIT License.
package slab

import (
	"math"

	"github.com/kestrel-cache/itemkernel/internal/arena"
	"github.com/kestrel-cache/itemkernel/internal/unsafehelpers"
)

// Handle identifies a single chunk: its class, the page it was carved from,
// and its byte offset within that page. Offset is exactly the item
// attribute of the same name in the data model.
type Handle struct {
	ClassID uint8
	PageID  uint32
	Offset  uint32
}

// Chunk is a handle paired with a live view of its backing bytes.
type Chunk struct {
	Handle
	Bytes []byte
}

// EvictFunc is consulted by GetItem when a class's free list and growth
// budget are both exhausted. It must return a handle to a chunk that has
// already been reclaimed (the item that owned it unlinked via reuse) and is
// therefore safe to hand back out, or ok=false if no victim is available.
// nil disables eviction entirely; exhaustion then surfaces as GetItem
// returning ok=false (NOMEM at the item layer).
type EvictFunc func(classID uint8) (Handle, bool)

// Config bundles the knobs New needs. BaseChunkSize and GrowthFactor define
// the geometric class series; MaxChunkSize doubles as both the largest
// legal chunk size and the byte size of every page (so every class's page
// holds at least one chunk). MaxPagesPerClass bounds growth before Evict
// (or NOMEM) kicks in; zero means unbounded growth.
type Config struct {
	BaseChunkSize    int
	GrowthFactor     float64
	MaxChunkSize     int
	MaxPagesPerClass int
	Evict            EvictFunc
}

type page struct {
	id  uint32
	ar  *arena.Arena
	ref int32
}

type class struct {
	id        uint8
	chunkSize int
	pages     []*page
	free      []Handle
}

// Allocator is the concrete slab allocator.
type Allocator struct {
	classes   []*class
	pageSize  int
	maxPages  int
	evict     EvictFunc
}

// New constructs an Allocator from cfg, applying sane defaults for any
// zero-valued field.
func New(cfg Config) *Allocator {
	base := cfg.BaseChunkSize
	if base <= 0 {
		base = 96
	}
	growth := cfg.GrowthFactor
	if growth <= 1.0 {
		growth = 1.25
	}
	maxSize := cfg.MaxChunkSize
	if maxSize <= 0 {
		maxSize = 1 << 20 // 1 MiB, matching memcached's default -I
	}

	return &Allocator{
		classes:  buildClasses(base, growth, maxSize),
		pageSize: maxSize,
		maxPages: cfg.MaxPagesPerClass,
		evict:    cfg.Evict,
	}
}

// buildClasses constructs the ascending geometric series of chunk sizes,
// pointer-aligning every size via the shared unsafehelpers.AlignUp helper
// and terminating with exactly maxSize as the final (largest) class. A
// series longer than 256 classes is cut at 256, and then ends below maxSize.
func buildClasses(base int, growth float64, maxSize int) []*class {
	var sizes []int
	size := base
	for size < maxSize {
		aligned := int(unsafehelpers.AlignUp(uintptr(size), 8))
		if len(sizes) == 0 || sizes[len(sizes)-1] != aligned {
			sizes = append(sizes, aligned)
		}
		size = int(math.Ceil(float64(size) * growth))
	}
	if len(sizes) == 0 || sizes[len(sizes)-1] != maxSize {
		sizes = append(sizes, maxSize)
	}
	if len(sizes) > 256 {
		sizes = sizes[:256]
	}

	classes := make([]*class, len(sizes))
	for i, s := range sizes {
		classes[i] = &class{id: uint8(i), chunkSize: s}
	}
	return classes
}

// ClassFor returns the smallest class whose chunk size is >= n.
func (a *Allocator) ClassFor(n int) (id uint8, ok bool) {
	for _, c := range a.classes {
		if c.chunkSize >= n {
			return c.id, true
		}
	}
	return 0, false
}

// ChunkSize returns the fixed chunk size of the given class.
func (a *Allocator) ChunkSize(classID uint8) int {
	return a.classes[classID].chunkSize
}

// GetItem returns a chunk from the given class: from the free list, from a
// freshly grown page, or — if an eviction policy is wired in — from a
// reclaimed victim. ok is false only when none of those three sources
// produced a chunk (NOMEM at the item layer).
func (a *Allocator) GetItem(classID uint8) (Chunk, bool) {
	c := a.classes[classID]

	if n := len(c.free); n > 0 {
		h := c.free[n-1]
		c.free = c.free[:n-1]
		return a.view(c, h), true
	}

	if a.maxPages == 0 || len(c.pages) < a.maxPages {
		a.growPage(c)
		n := len(c.free)
		h := c.free[n-1]
		c.free = c.free[:n-1]
		return a.view(c, h), true
	}

	if a.evict != nil {
		if h, ok := a.evict(classID); ok {
			ch := a.view(c, h)
			zero(ch.Bytes)
			return ch, true
		}
	}

	return Chunk{}, false
}

// PutItem returns chunk h to its class's free list, zeroing its bytes so
// the next GetItem caller receives a clean header area.
func (a *Allocator) PutItem(h Handle) {
	c := a.classes[h.ClassID]
	zero(a.view(c, h).Bytes)
	c.free = append(c.free, h)
}

// AcquireRefcount bumps the refcount mirrored on the page backing h.
func (a *Allocator) AcquireRefcount(h Handle) {
	p := a.classes[h.ClassID].pages[h.PageID-1]
	p.ref++
}

// ReleaseRefcount decrements the refcount mirrored on the page backing h.
// Pages are never individually reclaimed in this implementation (classes
// never shrink, matching real slab allocators), so this is bookkeeping for
// metrics/diagnostics rather than a trigger for freeing page memory.
func (a *Allocator) ReleaseRefcount(h Handle) {
	p := a.classes[h.ClassID].pages[h.PageID-1]
	if p.ref > 0 {
		p.ref--
	}
}

// PageRefcount reports the current mirrored refcount of the page backing h.
// Exposed for diagnostics (cmd/itemcore-inspect) and tests.
func (a *Allocator) PageRefcount(h Handle) int32 {
	return a.classes[h.ClassID].pages[h.PageID-1].ref
}

// ClassStat summarizes one class's current occupancy, for diagnostics
// (cmd/itemcore-inspect) rather than anything the allocation path consults.
type ClassStat struct {
	ClassID    uint8
	ChunkSize  int
	Pages      int
	FreeChunks int
	// LiveChunks is the number of chunks currently handed out (not parked on
	// the class's free list): Pages*chunksPerPage - FreeChunks.
	LiveChunks int
}

// Stats reports one ClassStat per configured class, in ascending chunk-size
// order.
func (a *Allocator) Stats() []ClassStat {
	out := make([]ClassStat, len(a.classes))
	for i, c := range a.classes {
		chunksPerPage := 0
		if c.chunkSize > 0 {
			chunksPerPage = a.pageSize / c.chunkSize
		}
		total := chunksPerPage * len(c.pages)
		out[i] = ClassStat{
			ClassID:    c.id,
			ChunkSize:  c.chunkSize,
			Pages:      len(c.pages),
			FreeChunks: len(c.free),
			LiveChunks: total - len(c.free),
		}
	}
	return out
}

// growPage carves a fresh page into chunkSize-sized chunks and pushes every
// one of them onto the class's free list.
func (a *Allocator) growPage(c *class) {
	p := &page{
		id: uint32(len(c.pages)) + 1,
		ar: arena.New(a.pageSize),
	}
	c.pages = append(c.pages, p)

	n := a.pageSize / c.chunkSize
	for i := 0; i < n; i++ {
		off := i * c.chunkSize
		p.ar.Alloc(c.chunkSize)
		c.free = append(c.free, Handle{ClassID: c.id, PageID: p.id, Offset: uint32(off)})
	}
}

// view reconstructs a live byte slice for h from its owning page's arena.
func (a *Allocator) view(c *class, h Handle) Chunk {
	p := c.pages[h.PageID-1]
	return Chunk{Handle: h, Bytes: p.ar.Bytes(int(h.Offset), c.chunkSize)}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
