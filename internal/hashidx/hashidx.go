// Package hashidx implements the key -> item hash index the item layer
// resolves every lookup through. It is a chained hash table over a fixed
// 2^hashPower bucket array, grounded on the teacher's hash/maphash-seeded
// hashing (pkg/cache.go's shard.hash) and on restic's indexMap
// (internal/index/indexmap.go): pointer-only buckets, a free list for entry
// reuse, and one maphash.Seed per table applied to a fresh maphash.Hash on
// every lookup.
//
// hashidx deliberately does not know the concrete item type stored in the
// table: it is sized, keyed, and walked generically, and the stored item is
// carried as an unsafe.Pointer the caller casts back — the same pattern the
// teacher's internal/clockpro package uses for its entry[K,V] handles, so
// that pkg/item and internal/hashidx never need to import one another.
//
// The table is sized once at construction and never resizes at runtime,
// matching the spec: resizing is explicitly left to a future re-init with a
// larger hash_power.
//
// © 2025 itemkernel authors. MIT License.
package hashidx

import (
	"bytes"
	"hash/maphash"
	"unsafe"
)

// entry is one node of a bucket's collision chain.
type entry struct {
	h    uint64
	key  []byte
	val  unsafe.Pointer
	next *entry
}

// Index is a fixed-size chained hash table keyed by raw key bytes.
type Index struct {
	buckets []*entry
	mask    uint64
	seed    maphash.Seed
	free    *entry // free list of recycled entry nodes
	count   int
}

// New constructs an index sized to 2^hashPower buckets. hashPower must be
// between 1 and 32.
func New(hashPower uint) *Index {
	if hashPower == 0 || hashPower > 32 {
		panic("hashidx: hashPower must be in [1, 32]")
	}
	n := uint64(1) << hashPower
	return &Index{
		buckets: make([]*entry, n),
		mask:    n - 1,
		seed:    maphash.MakeSeed(),
	}
}

// hash returns the full 64-bit digest of key; callers mask it down to a
// bucket index.
func (ix *Index) hash(key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(ix.seed)
	h.Write(key)
	return h.Sum64()
}

// Get returns the value stored for key, or (nil, false) if absent.
func (ix *Index) Get(key []byte) (unsafe.Pointer, bool) {
	h := ix.hash(key)
	for e := ix.buckets[h&ix.mask]; e != nil; e = e.next {
		if e.h == h && bytes.Equal(e.key, key) {
			return e.val, true
		}
	}
	return nil, false
}

// Put inserts val under key. The caller guarantees key is not already
// present (the item layer always unlinks before relinking).
func (ix *Index) Put(key []byte, val unsafe.Pointer) {
	h := ix.hash(key)
	b := h & ix.mask

	e := ix.newEntry()
	e.h = h
	e.key = key
	e.val = val
	e.next = ix.buckets[b]
	ix.buckets[b] = e
	ix.count++
}

// Delete removes key if present and reports whether it was found.
func (ix *Index) Delete(key []byte) bool {
	h := ix.hash(key)
	b := h & ix.mask

	var prev *entry
	for e := ix.buckets[b]; e != nil; e = e.next {
		if e.h == h && bytes.Equal(e.key, key) {
			if prev == nil {
				ix.buckets[b] = e.next
			} else {
				prev.next = e.next
			}
			ix.count--
			ix.release(e)
			return true
		}
		prev = e
	}
	return false
}

// Len returns the number of entries currently stored.
func (ix *Index) Len() int { return ix.count }

// newEntry pops a node from the free list, or allocates a fresh one.
func (ix *Index) newEntry() *entry {
	if ix.free == nil {
		return &entry{}
	}
	e := ix.free
	ix.free = e.next
	*e = entry{}
	return e
}

// release parks a detached node on the free list for reuse.
func (ix *Index) release(e *entry) {
	e.key, e.val = nil, nil
	e.next = ix.free
	ix.free = e
}
