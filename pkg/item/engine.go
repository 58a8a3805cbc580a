package item

import (
	"sync/atomic"
	"unsafe"

	"github.com/kestrel-cache/itemkernel/internal/hashidx"
	"github.com/kestrel-cache/itemkernel/internal/reltime"
	"github.com/kestrel-cache/itemkernel/internal/slab"
	"github.com/kestrel-cache/itemkernel/pkg/metrics"
	"go.uber.org/zap"
)

// Config bundles the collaborators and knobs an Engine needs. Slab is
// required; everything else defaults to a harmless no-op.
type Config struct {
	HashPower uint
	UseCAS    bool
	Slab      *slab.Allocator
	Metrics   metrics.Sink
	Clock     *reltime.Clock
	Logger    *zap.Logger

	// OnLink/OnUnlink, if set, are called after every successful link/unlink
	// so an external eviction-candidate tracker (internal/clockring, wired
	// up by pkg/store) can stay in sync without this package knowing it
	// exists.
	OnLink   func(h slab.Handle, weight int)
	OnUnlink func(h slab.Handle)

	// OnEvict, if set, is called from ReclaimForEviction with the key and
	// value of the item about to be severed, before its chunk is handed to
	// the new allocation that triggered eviction. It lets an embedder spill
	// an about-to-be-lost value to a second-level store without the item
	// layer knowing anything about that store.
	OnEvict func(key, val []byte)
}

// Engine is the item layer: a hash index of *Item plus the alloc/link/
// unlink/refcount machinery that keeps it consistent. An Engine is not
// safe for concurrent use; pkg/store.Store adds the lock.
type Engine struct {
	index      *hashidx.Index
	slab       *slab.Allocator
	clock      *reltime.Clock
	metrics    metrics.Sink
	log        *zap.Logger
	useCAS     bool
	casCounter atomic.Uint64
	byHandle   map[slab.Handle]*Item

	onLink   func(slab.Handle, int)
	onUnlink func(slab.Handle)
	onEvict  func(key, val []byte)
}

// New constructs an Engine. Panics if cfg.Slab is nil; every other field
// has a usable zero behavior.
func New(cfg Config) *Engine {
	if cfg.Slab == nil {
		panic("item: Config.Slab is required")
	}
	hp := cfg.HashPower
	if hp == 0 {
		hp = 16
	}
	met := cfg.Metrics
	if met == nil {
		met = metrics.Noop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = reltime.New()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		index:    hashidx.New(hp),
		slab:     cfg.Slab,
		clock:    clk,
		metrics:  met,
		log:      log,
		useCAS:   cfg.UseCAS,
		byHandle: make(map[slab.Handle]*Item),
		onLink:   cfg.OnLink,
		onUnlink: cfg.OnUnlink,
		onEvict:  cfg.OnEvict,
	}
}

// Close drops the engine's internal references. It does not walk and free
// every live item individually — callers tear down the whole process or
// discard the backing slab allocator along with it.
func (e *Engine) Close() {
	e.index = nil
	e.byHandle = nil
}

// Len reports the number of linked items.
func (e *Engine) Len() int {
	if e.index == nil {
		return 0
	}
	return e.index.Len()
}

// CASCounter reports the current value of the monotonically increasing CAS
// counter (0 if CAS is disabled or no item has been linked yet). Exposed for
// diagnostics (cmd/itemcore-inspect); never consulted by the operations
// themselves, which always mint the next value via nextCAS.
func (e *Engine) CASCounter() uint64 {
	return e.casCounter.Load()
}

/* ---------------- public operations ---------------- */

// Alloc reserves a chunk sized for a key/value pair with no prior linkage:
// refcount 1, unlinked, left-aligned. The caller owns the returned refcount
// and must release it via Release once the item is linked (or discarded).
func (e *Engine) Alloc(key []byte, exptime uint32, vlen int) (*Item, Status) {
	if len(key) == 0 || len(key) > 250 {
		panic("item: key length out of range")
	}

	e.metrics.Incr(metrics.ItemReq)

	need := neededSize(len(key), vlen, e.useCAS)
	classID, ok := e.slab.ClassFor(need)
	if !ok {
		return nil, Oversized
	}

	chunk, ok := e.slab.GetItem(classID)
	if !ok {
		e.metrics.Incr(metrics.ItemReqEx)
		return nil, NoMem
	}

	it := &Item{
		magic:    itemMagic,
		handle:   chunk.Handle,
		classID:  classID,
		refcount: 1,
		hasCAS:   e.useCAS,
		klen:     uint8(len(key)),
		vlen:     uint32(vlen),
		exptime:  exptime,
		buf:      chunk.Bytes,
	}
	copy(it.buf[:it.klen], key)
	e.byHandle[it.handle] = it
	return it, OK
}

// Get looks up key, honoring lazy expiry, and returns an acquired handle to
// the linked item. The caller must Release it when done.
func (e *Engine) Get(key []byte) (*Item, bool) {
	return e.find(key)
}

// Release drops one reference on it, freeing its chunk back to the slab
// allocator once the refcount reaches zero and it is no longer linked.
// Releasing an item whose refcount is already zero is a programming bug
// and panics.
func (e *Engine) Release(it *Item) {
	e.release(it)
}

// Set stores val under key unconditionally, replacing any existing linked
// item (expired or not).
func (e *Engine) Set(key, val []byte, exptime uint32) Status {
	it, status := e.Alloc(key, exptime, len(val))
	if status != OK {
		return status
	}
	it.writeValue(val)

	if old, found := e.find(key); found {
		e.relink(old, it)
		e.release(old)
	} else {
		e.link(it)
	}
	e.release(it)
	return OK
}

// Cas stores val under key only if the currently linked item's CAS token
// equals expected.
func (e *Engine) Cas(key, val []byte, exptime uint32, expected uint64) Status {
	old, found := e.find(key)
	if !found {
		return NotFound
	}
	if old.CAS() != expected {
		e.release(old)
		return CompareFail
	}

	it, status := e.Alloc(key, exptime, len(val))
	if status != OK {
		e.release(old)
		return status
	}
	it.setCAS(expected)
	it.writeValue(val)

	e.relink(old, it)
	e.release(old)
	e.release(it)
	return OK
}

// Annex appends (append=true) or prepends (append=false) val to the
// existing item under key, in place when the current chunk's class already
// holds the combined size and the payload's alignment already favors the
// requested direction, or via a fresh allocation and relink otherwise.
func (e *Engine) Annex(key, val []byte, append bool) Status {
	old, found := e.find(key)
	if !found {
		return NotFound
	}

	need := int(old.klen) + old.casLen() + int(old.vlen) + len(val)
	if _, ok := e.slab.ClassFor(need); !ok {
		e.release(old)
		return Oversized
	}

	chunkCap := len(old.buf)
	if need <= chunkCap {
		if append && !old.isRAligned {
			off := old.valueOffset() + int(old.vlen)
			copy(old.buf[off:off+len(val)], val)
			old.vlen += uint32(len(val))
			e.metrics.IncrBy(metrics.ItemKeyValByte, int64(len(val)))
			e.metrics.IncrBy(metrics.ItemValByte, int64(len(val)))
			old.vtype = classify(old.Value())
			old.setCAS(e.nextCAS())
			e.release(old)
			return OK
		}
		if !append && old.isRAligned {
			newVlen := old.vlen + uint32(len(val))
			newOff := chunkCap - int(newVlen)
			copy(old.buf[newOff:newOff+len(val)], val)
			old.vlen = newVlen
			e.metrics.IncrBy(metrics.ItemKeyValByte, int64(len(val)))
			e.metrics.IncrBy(metrics.ItemValByte, int64(len(val)))
			old.vtype = classify(old.Value())
			old.setCAS(e.nextCAS())
			e.release(old)
			return OK
		}
	}

	var combined []byte
	if append {
		combined = concat(old.Value(), val)
	} else {
		combined = concat(val, old.Value())
	}

	it, status := e.Alloc(key, old.exptime, len(combined))
	if status != OK {
		e.release(old)
		return status
	}
	if !append {
		it.isRAligned = true
	}
	it.writeValue(combined)

	e.relink(old, it)
	e.release(old)
	e.release(it)
	return OK
}

// Update overwrites the value of an already-held item in place, provided
// the new size still fits the item's current slab class. It does not
// touch the hash index, CAS token, or linkage.
func (e *Engine) Update(it *Item, val []byte) Status {
	it.checkMagic()
	need := int(it.klen) + it.casLen() + len(val)
	newClass, ok := e.slab.ClassFor(need)
	if !ok || newClass != it.classID {
		return Oversized
	}
	if it.isLinked {
		delta := int64(len(val)) - int64(it.vlen)
		e.metrics.IncrBy(metrics.ItemKeyValByte, delta)
		e.metrics.IncrBy(metrics.ItemValByte, delta)
	}
	it.writeValue(val)
	return OK
}

// Delete unlinks the item under key, if any, and releases the reference
// acquired by the lookup.
func (e *Engine) Delete(key []byte) Status {
	it, found := e.find(key)
	if !found {
		return NotFound
	}
	e.metrics.Incr(metrics.ItemRemove)
	e.unlink(it)
	e.release(it)
	return OK
}

/* ---------------- internal primitives ---------------- */

// find resolves key through the hash index, evicting it lazily if its
// expiry has passed, and acquires a reference on success.
func (e *Engine) find(key []byte) (*Item, bool) {
	p, ok := e.index.Get(key)
	if !ok {
		return nil, false
	}
	it := (*Item)(p)
	if it.exptime != 0 && it.exptime <= e.clock.Now() {
		e.unlink(it)
		return nil, false
	}
	e.acquire(it)
	return it, true
}

func (e *Engine) acquire(it *Item) {
	it.checkMagic()
	it.refcount++
	e.slab.AcquireRefcount(it.handle)
}

func (e *Engine) release(it *Item) {
	it.checkMagic()
	if it.refcount == 0 {
		e.log.Error("item: release of item with refcount already zero", zap.Binary("key", it.buf[:it.klen]))
		panic("item: release of item with refcount already zero")
	}
	it.refcount--
	e.slab.ReleaseRefcount(it.handle)
	if it.refcount == 0 && !it.isLinked {
		e.freeChunk(it)
	}
}

func (e *Engine) link(it *Item) {
	if it.isLinked || it.inFreeQ {
		panic("item: link of an item already linked or queued free")
	}
	it.setCAS(e.nextCAS())
	it.isLinked = true

	e.index.Put(it.Key(), unsafe.Pointer(it))
	e.metrics.Incr(metrics.ItemLink)
	e.metrics.Incr(metrics.ItemCurr)
	e.metrics.IncrBy(metrics.ItemKeyValByte, int64(it.klen)+int64(it.vlen))
	e.metrics.IncrBy(metrics.ItemValByte, int64(it.vlen))

	if e.onLink != nil {
		e.onLink(it.handle, len(it.buf))
	}
}

func (e *Engine) unlink(it *Item) {
	if !it.isLinked {
		return
	}
	e.index.Delete(it.Key())
	it.isLinked = false

	e.metrics.Incr(metrics.ItemUnlink)
	e.metrics.Decr(metrics.ItemCurr)
	e.metrics.DecrBy(metrics.ItemKeyValByte, int64(it.klen)+int64(it.vlen))
	e.metrics.DecrBy(metrics.ItemValByte, int64(it.vlen))

	if e.onUnlink != nil {
		e.onUnlink(it.handle)
	}

	if it.refcount == 0 {
		e.freeChunk(it)
	}
}

// relink unlinks old and links new, exactly in that order, so the window
// between them is never observable.
func (e *Engine) relink(old, new *Item) {
	e.unlink(old)
	e.link(new)
}

// freeChunk returns it's chunk to the slab allocator and forgets the item.
// Any further use of it is a use-after-free caught by checkMagic.
func (e *Engine) freeChunk(it *Item) {
	delete(e.byHandle, it.handle)
	it.inFreeQ = true
	it.magic = 0
	e.slab.PutItem(it.handle)
}

// ReclaimForEviction implements the item half of the slab allocator's
// reuse contract: given a handle the eviction policy selected, sever the
// item currently occupying it from the hash index without returning the
// chunk to the slab free list — the slab allocator is about to hand that
// exact chunk straight to a new allocation. Returns false if the handle is
// not occupied by an evictable (unreferenced, linked) item.
func (e *Engine) ReclaimForEviction(h slab.Handle) bool {
	it, ok := e.byHandle[h]
	if !ok || it.refcount != 0 || !it.isLinked {
		return false
	}

	if e.onEvict != nil {
		e.onEvict(it.Key(), it.Value())
	}

	e.index.Delete(it.Key())
	it.isLinked = false
	it.magic = 0

	e.metrics.Incr(metrics.ItemUnlink)
	e.metrics.Decr(metrics.ItemCurr)
	e.metrics.DecrBy(metrics.ItemKeyValByte, int64(it.klen)+int64(it.vlen))
	e.metrics.DecrBy(metrics.ItemValByte, int64(it.vlen))

	if e.onUnlink != nil {
		e.onUnlink(it.handle)
	}

	delete(e.byHandle, h)
	return true
}

func (e *Engine) nextCAS() uint64 {
	if !e.useCAS {
		return 0
	}
	return e.casCounter.Add(1)
}
