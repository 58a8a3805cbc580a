// Package item is the core item layer: refcounted, hash-linked records
// backed by slab chunks, with CAS, in-place append/prepend, and lazy
// expiry on the read path.
//
// This package is intentionally unsynchronized — no internal locking, no
// atomics on the hot fields. Serializing concurrent access is pkg/store's
// job, exactly the division the teacher draws between its shard type
// (locking) and internal/clockpro (bare list bookkeeping, lock held by the
// caller).
//
// © 2025 itemkernel authors. MIT License.
package item

import (
	"encoding/binary"
	"strconv"

	"github.com/kestrel-cache/itemkernel/internal/slab"
	"github.com/kestrel-cache/itemkernel/internal/unsafehelpers"
)

// itemMagic marks a live Item. Cleared on free so any further use of a
// stale pointer is caught instead of silently corrupting a chunk some other
// item now owns.
const itemMagic uint32 = 0xfeedface

// Item is one cache entry. Key, the optional CAS token, and the value all
// live in buf, a direct view of the chunk the slab allocator handed out for
// this item's class; no payload byte is ever copied into the Go struct
// itself. Which end of buf the value is anchored to is governed by
// isRAligned: false keeps the value flush against the key/cas region
// (cheap in-place append), true keeps it flush against the end of buf
// (cheap in-place prepend).
type Item struct {
	magic      uint32
	handle     slab.Handle
	classID    uint8
	refcount   int32
	isLinked   bool
	inFreeQ    bool
	isRAligned bool
	hasCAS     bool
	klen       uint8
	vlen       uint32
	exptime    uint32
	vtype      VType
	buf        []byte
}

// Key returns the item's key. The returned slice aliases buf; callers must
// not retain it past a release of the item.
func (it *Item) Key() []byte {
	it.checkMagic()
	return it.buf[:it.klen]
}

// Value returns the item's current payload. Like Key, it aliases buf.
func (it *Item) Value() []byte {
	it.checkMagic()
	off := it.valueOffset()
	return it.buf[off : off+int(it.vlen)]
}

// CAS returns the item's current CAS token, or 0 if CAS tracking is
// disabled for this engine.
func (it *Item) CAS() uint64 {
	it.checkMagic()
	if !it.hasCAS {
		return 0
	}
	return binary.BigEndian.Uint64(it.buf[it.klen : int(it.klen)+8])
}

// Exptime returns the absolute expiry time (relative-clock seconds), or 0
// for an item that never expires.
func (it *Item) Exptime() uint32 { return it.exptime }

// VType returns the item's current value classification.
func (it *Item) VType() VType { return it.vtype }

// ClassID returns the slab class this item's chunk belongs to.
func (it *Item) ClassID() uint8 { return it.classID }

// RefCount returns the item's current reference count. Exposed for
// diagnostics and tests; not meant to gate caller logic.
func (it *Item) RefCount() int32 { return it.refcount }

// IsLinked reports whether the item is currently reachable from the hash
// index.
func (it *Item) IsLinked() bool { return it.isLinked }

func (it *Item) casLen() int {
	if it.hasCAS {
		return 8
	}
	return 0
}

// valueOffset computes where the value region starts within buf, given the
// item's current alignment.
func (it *Item) valueOffset() int {
	if it.isRAligned {
		return len(it.buf) - int(it.vlen)
	}
	return int(it.klen) + it.casLen()
}

func (it *Item) setCAS(v uint64) {
	if !it.hasCAS {
		return
	}
	binary.BigEndian.PutUint64(it.buf[it.klen:int(it.klen)+8], v)
}

// writeValue copies val into the value region at the item's current
// alignment, updates vlen, and reclassifies vtype. Callers are responsible
// for having already verified val fits in buf.
func (it *Item) writeValue(val []byte) {
	it.vlen = uint32(len(val))
	off := it.valueOffset()
	copy(it.buf[off:off+len(val)], val)
	it.vtype = classify(val)
}

func (it *Item) checkMagic() {
	if it.magic != itemMagic {
		panic("item: use of a freed or corrupt item")
	}
}

// neededSize is the number of chunk bytes an item with the given key
// length, CAS flag, and value length requires.
func neededSize(klen, vlen int, hasCAS bool) int {
	n := klen + vlen
	if hasCAS {
		n += 8
	}
	return n
}

// classify implements the is_integer check real memcached performs after
// every value write: a payload classifies as VTypeINT only if every byte is
// an ASCII digit and the whole thing parses as an unsigned 64-bit integer.
func classify(val []byte) VType {
	if len(val) == 0 {
		return VTypeSTR
	}
	for _, b := range val {
		if b < '0' || b > '9' {
			return VTypeSTR
		}
	}
	if _, err := strconv.ParseUint(unsafehelpers.BytesToString(val), 10, 64); err != nil {
		return VTypeSTR
	}
	return VTypeINT
}

func concat(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}
