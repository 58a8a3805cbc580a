// Package store is the top-level façade: one coarse lock wrapped around
// pkg/item's Engine, internal/slab's Allocator, and (optionally)
// internal/clockring's eviction ring, wired together the way the teacher's
// pkg/cache.go wires a shard's map, clockpro ring, and metrics sink.
//
// Unlike the teacher, which shards by key hash to scale lock contention
// across goroutines, Store holds a single hash index behind a single
// mutex: the data model this package implements names one hash table, not
// N independent ones, so sharding would change the externally observable
// semantics (two keys that hash to different shards never contend, but
// here every key shares one global namespace with CAS tokens issued from
// one counter). See DESIGN.md for the longer version of that call.
//
// © 2025 itemkernel authors. MIT License.
package store

import (
	"sync"

	"github.com/kestrel-cache/itemkernel/internal/clockring"
	"github.com/kestrel-cache/itemkernel/internal/reltime"
	"github.com/kestrel-cache/itemkernel/internal/slab"
	"github.com/kestrel-cache/itemkernel/pkg/item"
	"github.com/kestrel-cache/itemkernel/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the embeddable entry point: an in-memory item store with a
// slab-backed allocator underneath it.
type Store struct {
	mu sync.RWMutex

	eng   *item.Engine
	slab  *slab.Allocator
	ring  *clockring.Ring
	clock *reltime.Clock
	log   *zap.Logger

	stopTicker func()
	sf         singleflight.Group
}

// New constructs a Store. With no options it behaves like a small,
// CAS-disabled, eviction-disabled store with sensible slab sizing.
func New(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	met := metrics.New(cfg.MetricsRegistry)
	clk := cfg.Clock
	if clk == nil {
		clk = reltime.New()
	}

	s := &Store{clock: clk, log: log}

	var evictFn slab.EvictFunc
	if cfg.EvictionEnabled {
		s.ring = clockring.New()
		evictFn = s.evictOne
	}

	s.slab = slab.New(slab.Config{
		BaseChunkSize:    cfg.BaseChunkSize,
		GrowthFactor:     cfg.GrowthFactor,
		MaxChunkSize:     cfg.MaxChunkSize,
		MaxPagesPerClass: cfg.MaxPagesPerClass,
		Evict:            evictFn,
	})

	var onLink func(slab.Handle, int)
	var onUnlink func(slab.Handle)
	if s.ring != nil {
		onLink = s.ring.Touch
		onUnlink = s.ring.Forget
	}

	s.eng = item.New(item.Config{
		HashPower: cfg.HashPower,
		UseCAS:    cfg.UseCAS,
		Slab:      s.slab,
		Metrics:   met,
		Clock:     clk,
		Logger:    log,
		OnLink:    onLink,
		OnUnlink:  onUnlink,
		OnEvict:   cfg.EvictCallback,
	})

	if cfg.ClockTick > 0 {
		s.stopTicker = clk.RunTicker(cfg.ClockTick)
	}
	return s
}

// evictOne runs the eviction ring until it yields a handle of classID that
// the item layer actually reclaims, or the ring runs dry. The ring is shared
// by every class, so a candidate from another class is passed over, as is a
// candidate whose item a caller still holds a reference to (the item layer
// refuses to reclaim it). Passed-over candidates are put back on the ring
// before returning.
func (s *Store) evictOne(classID uint8) (slab.Handle, bool) {
	var skipped []slab.Handle
	defer func() {
		for _, h := range skipped {
			s.ring.Touch(h, s.slab.ChunkSize(h.ClassID))
		}
	}()
	for {
		h, ok := s.ring.Evict()
		if !ok {
			return slab.Handle{}, false
		}
		if h.ClassID == classID && s.eng.ReclaimForEviction(h) {
			return h, true
		}
		skipped = append(skipped, h)
	}
}

// Close stops the background clock ticker, if any, and releases the
// store's internal references. It does not individually free every live
// item; embedders tear down the whole Store and let the backing memory go
// with it.
func (s *Store) Close() {
	if s.stopTicker != nil {
		s.stopTicker()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eng.Close()
}

// Len reports the number of currently linked items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Len()
}

// Get looks up key, applying lazy expiry, and returns an acquired handle
// to the linked item. Callers must call Release when done with it.
func (s *Store) Get(key []byte) (*item.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Get(key)
}

// Release drops one reference acquired by Get, Alloc, or GetOrFill.
func (s *Store) Release(it *item.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eng.Release(it)
}

// Alloc reserves a chunk for key/vlen without linking it into the hash
// index. The caller must eventually either link it (there is no public
// link primitive; use Set/Cas/Annex) or Release it to return the chunk.
func (s *Store) Alloc(key []byte, exptime uint32, vlen int) (*item.Item, item.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Alloc(key, exptime, vlen)
}

// Set stores val under key unconditionally.
func (s *Store) Set(key, val []byte, exptime uint32) item.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Set(key, val, exptime)
}

// Cas stores val under key only if the linked item's CAS token equals
// expected.
func (s *Store) Cas(key, val []byte, exptime uint32, expected uint64) item.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Cas(key, val, exptime, expected)
}

// Annex appends or prepends val to the item linked under key.
func (s *Store) Annex(key, val []byte, appendRHS bool) item.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Annex(key, val, appendRHS)
}

// Update overwrites the value of an already-acquired item in place.
func (s *Store) Update(it *item.Item, val []byte) item.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Update(it, val)
}

// Delete unlinks the item under key, if any.
func (s *Store) Delete(key []byte) item.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Delete(key)
}

// RefreshClock forces the relative-time source to resync against the wall
// clock immediately, rather than waiting for the background ticker. With
// WithClockTick(0) there is no background ticker, and this is the only way
// the clock advances.
func (s *Store) RefreshClock() {
	s.clock.Refresh()
}

// SlabStats reports per-class chunk occupancy of the underlying slab
// allocator, for diagnostics (cmd/itemcore-inspect).
func (s *Store) SlabStats() []slab.ClassStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slab.Stats()
}

// CASCounter reports the current value of the monotonically increasing CAS
// counter, for diagnostics.
func (s *Store) CASCounter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.CASCounter()
}

// EvictionStats reports whether the CLOCK-Pro eviction ring is wired in and,
// if so, how many chunks it is currently tracking as candidates and their
// combined weight in bytes. enabled is false when Store was built without
// WithEviction(true), in which case tracked and weightBytes are always 0.
func (s *Store) EvictionStats() (enabled bool, tracked int, weightBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ring == nil {
		return false, 0, 0
	}
	return true, s.ring.Len(), s.ring.Size()
}
