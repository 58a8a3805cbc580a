package clockring

import (
	"testing"

	"github.com/kestrel-cache/itemkernel/internal/slab"
)

func h(offset uint32) slab.Handle {
	return slab.Handle{ClassID: 0, PageID: 1, Offset: offset}
}

// A lone candidate has nothing else for the clock hand to spare, so one
// Evict() call sweeps it cold->hot->cold and reclaims it.
func TestSoleCandidateIsEvicted(t *testing.T) {
	r := New()
	r.Touch(h(1), 10)

	victim, ok := r.Evict()
	if !ok {
		t.Fatal("Evict: not ok, want the sole candidate reclaimed")
	}
	if victim != h(1) {
		t.Fatalf("Evict victim = %+v, want %+v", victim, h(1))
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after reclaiming the only candidate", r.Size())
	}
	if _, ok := r.Evict(); ok {
		t.Fatal("Evict on now-empty ring returned ok=true")
	}
}

func TestForgetRemovesCandidate(t *testing.T) {
	r := New()
	r.Touch(h(1), 10)
	r.Forget(h(1))
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after Forget", r.Size())
	}
	if _, ok := r.Evict(); ok {
		t.Fatal("Evict found a victim after Forget emptied the ring")
	}
}

func TestForgetOfUntrackedHandleIsNoop(t *testing.T) {
	r := New()
	r.Touch(h(1), 10)
	r.Forget(h(99)) // never tracked
	if r.Size() != 10 {
		t.Fatalf("Size() = %d, want 10 (Forget of an untracked handle must not touch it)", r.Size())
	}
}

func TestSizeTracksWeights(t *testing.T) {
	r := New()
	r.Touch(h(1), 10)
	r.Touch(h(2), 20)
	if r.Size() != 30 {
		t.Fatalf("Size() = %d, want 30", r.Size())
	}
	r.Forget(h(1))
	if r.Size() != 20 {
		t.Fatalf("Size() = %d, want 20 after Forget", r.Size())
	}
}

func TestEvictOnEmptyRing(t *testing.T) {
	r := New()
	if _, ok := r.Evict(); ok {
		t.Fatal("Evict on empty ring returned ok=true")
	}
}

// Repeated Evict() calls drain every tracked candidate exactly once, with
// no duplicates and no survivors, regardless of the FSM's internal path.
func TestEvictDrainsEveryCandidateExactlyOnce(t *testing.T) {
	r := New()
	handles := []slab.Handle{h(1), h(2), h(3), h(4), h(5)}
	wantSize := int64(0)
	for i, hd := range handles {
		w := (i + 1) * 10
		r.Touch(hd, w)
		wantSize += int64(w)
	}
	if r.Size() != wantSize {
		t.Fatalf("Size() = %d, want %d", r.Size(), wantSize)
	}

	seen := make(map[slab.Handle]bool)
	for i := 0; i < len(handles); i++ {
		victim, ok := r.Evict()
		if !ok {
			t.Fatalf("Evict() #%d: not ok, want a victim (%d candidates remain)", i+1, len(handles)-i)
		}
		if seen[victim] {
			t.Fatalf("Evict() returned %+v twice", victim)
		}
		seen[victim] = true
	}
	if len(seen) != len(handles) {
		t.Fatalf("evicted %d distinct candidates, want %d", len(seen), len(handles))
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 once every candidate is evicted", r.Size())
	}
	if _, ok := r.Evict(); ok {
		t.Fatal("Evict on drained ring returned ok=true")
	}
}

// Touch on an already-tracked handle refreshes its reference bit rather
// than inserting a duplicate node.
func TestTouchOnTrackedHandleDoesNotDuplicate(t *testing.T) {
	r := New()
	r.Touch(h(1), 10)
	r.Touch(h(1), 10)
	if r.Size() != 10 {
		t.Fatalf("Size() = %d, want 10 (re-Touch must not double-count)", r.Size())
	}
}
