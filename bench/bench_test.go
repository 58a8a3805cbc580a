// Package bench provides reproducible micro-benchmarks for itemkernel.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks use a single key/value shape so results are comparable
// across versions:
//   - Key   — formatted uint64 (cheap to build, varies bucket placement)
//   - Value — a fixed 64-byte payload
//
// We measure:
//  1. Set        — write-only workload
//  2. Get        — read-only workload (after warm-up)
//  3. GetParallel — concurrent reads against one Store + its lock
//  4. GetOrFill  — 90% hits, 10% misses with a loader cost
//
// NOTE: unit tests live in pkg/item, pkg/store, and internal/*; this file
// is only for performance.
//
// © 2025 itemkernel authors. MIT License.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/kestrel-cache/itemkernel/pkg/store"
)

const (
	keys = 1 << 16 // 64K keys for dataset
)

var value64 = make([]byte, 64)

func newTestStore() *store.Store {
	return store.New(
		store.WithHashPower(18),
		store.WithSlabSizing(96, 1.25, 1<<20),
	)
}

// ds is the shared dataset of formatted keys, built once.
var ds = func() [][]byte {
	r := rand.New(rand.NewSource(42))
	arr := make([][]byte, keys)
	for i := range arr {
		arr[i] = []byte(fmt.Sprintf("bench-key-%d", r.Uint64()))
	}
	return arr
}()

func BenchmarkSet(b *testing.B) {
	s := newTestStore()
	defer s.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		s.Set(k, value64, 0)
	}
}

func BenchmarkGet(b *testing.B) {
	s := newTestStore()
	defer s.Close()
	for _, k := range ds {
		s.Set(k, value64, 0)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		it, ok := s.Get(k)
		if ok {
			s.Release(it)
		}
	}
}

func BenchmarkGetParallel(b *testing.B) {
	s := newTestStore()
	defer s.Close()
	for _, k := range ds {
		s.Set(k, value64, 0)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			if it, ok := s.Get(ds[idx]); ok {
				s.Release(it)
			}
		}
	})
}

func BenchmarkGetOrFill(b *testing.B) {
	s := newTestStore()
	defer s.Close()
	for i, k := range ds {
		if i%10 != 0 { // 90% pre-filled
			s.Set(k, value64, 0)
		}
	}
	var loaderCnt atomic.Uint64
	loader := func(ctx context.Context, key []byte) ([]byte, uint32, error) {
		loaderCnt.Add(1)
		return value64, 0, nil
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		it, err := s.GetOrFill(ctx, k, loader)
		if err == nil {
			s.Release(it)
		}
	}
	b.ReportMetric(float64(loaderCnt.Load())/float64(b.N)*100, "miss-%")
}
