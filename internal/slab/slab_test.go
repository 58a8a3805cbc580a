package slab

import "testing"

func TestClassForAndChunkSize(t *testing.T) {
	a := New(Config{BaseChunkSize: 64, GrowthFactor: 1.25, MaxChunkSize: 1024})

	id, ok := a.ClassFor(10)
	if !ok {
		t.Fatal("ClassFor(10): not ok")
	}
	if sz := a.ChunkSize(id); sz < 10 {
		t.Fatalf("ChunkSize(%d) = %d, want >= 10", id, sz)
	}

	if _, ok := a.ClassFor(1 << 20); ok {
		t.Fatal("ClassFor(huge): ok, want false (exceeds largest class)")
	}
}

func TestGetPutItemRoundTrip(t *testing.T) {
	a := New(Config{BaseChunkSize: 64, GrowthFactor: 1.25, MaxChunkSize: 1024})
	id, _ := a.ClassFor(20)

	ch, ok := a.GetItem(id)
	if !ok {
		t.Fatal("GetItem: not ok")
	}
	ch.Bytes[0] = 0xAB

	a.PutItem(ch.Handle)
	ch2, ok := a.GetItem(id)
	if !ok {
		t.Fatal("GetItem after Put: not ok")
	}
	if ch2.Bytes[0] != 0 {
		t.Fatalf("reused chunk not zeroed: got %#x", ch2.Bytes[0])
	}
}

func TestRefcountMirroring(t *testing.T) {
	a := New(Config{BaseChunkSize: 64, GrowthFactor: 1.25, MaxChunkSize: 1024})
	id, _ := a.ClassFor(20)
	ch, _ := a.GetItem(id)

	a.AcquireRefcount(ch.Handle)
	a.AcquireRefcount(ch.Handle)
	if got := a.PageRefcount(ch.Handle); got != 2 {
		t.Fatalf("PageRefcount = %d, want 2", got)
	}
	a.ReleaseRefcount(ch.Handle)
	if got := a.PageRefcount(ch.Handle); got != 1 {
		t.Fatalf("PageRefcount = %d, want 1", got)
	}
	// Releasing past zero must not go negative.
	a.ReleaseRefcount(ch.Handle)
	a.ReleaseRefcount(ch.Handle)
	if got := a.PageRefcount(ch.Handle); got != 0 {
		t.Fatalf("PageRefcount = %d, want 0 (floor)", got)
	}
}

func TestGrowthExhaustionWithoutEvictReturnsNoMem(t *testing.T) {
	a := New(Config{BaseChunkSize: 64, GrowthFactor: 1.25, MaxChunkSize: 64, MaxPagesPerClass: 1})
	id, _ := a.ClassFor(10)

	n := a.pageSize / a.ChunkSize(id)
	for i := 0; i < n; i++ {
		if _, ok := a.GetItem(id); !ok {
			t.Fatalf("GetItem %d/%d: not ok, expected the single page to satisfy it", i+1, n)
		}
	}
	if _, ok := a.GetItem(id); ok {
		t.Fatal("GetItem past the page/growth budget: ok, want false (NOMEM upstream)")
	}
}

func TestEvictFuncConsultedOnExhaustion(t *testing.T) {
	var evictCalls int
	var victim Handle
	a := New(Config{
		BaseChunkSize:    64,
		GrowthFactor:     1.25,
		MaxChunkSize:     64,
		MaxPagesPerClass: 1,
		Evict: func(classID uint8) (Handle, bool) {
			evictCalls++
			return victim, victim != (Handle{})
		},
	})
	id, _ := a.ClassFor(10)
	n := a.pageSize / a.ChunkSize(id)
	var last Chunk
	for i := 0; i < n; i++ {
		last, _ = a.GetItem(id)
	}
	victim = last.Handle

	ch, ok := a.GetItem(id)
	if !ok {
		t.Fatal("GetItem with Evict wired: not ok")
	}
	if evictCalls == 0 {
		t.Fatal("Evict was never consulted")
	}
	if ch.Handle != victim {
		t.Fatalf("GetItem returned %+v, want evicted handle %+v", ch.Handle, victim)
	}
}
