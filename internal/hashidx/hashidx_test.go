package hashidx

import (
	"fmt"
	"testing"
	"unsafe"
)

func ptr(i int) unsafe.Pointer {
	v := i
	return unsafe.Pointer(&v)
}

func TestPutGetDelete(t *testing.T) {
	ix := New(4)

	p := ptr(1)
	ix.Put([]byte("foo"), p)
	if got, ok := ix.Get([]byte("foo")); !ok || got != p {
		t.Fatalf("Get(foo) = (%v, %v), want (%v, true)", got, ok, p)
	}
	if _, ok := ix.Get([]byte("bar")); ok {
		t.Fatal("Get(bar) found, want miss")
	}
	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ix.Len())
	}

	if !ix.Delete([]byte("foo")) {
		t.Fatal("Delete(foo) = false, want true")
	}
	if _, ok := ix.Get([]byte("foo")); ok {
		t.Fatal("Get(foo) after Delete: found, want miss")
	}
	if ix.Delete([]byte("foo")) {
		t.Fatal("second Delete(foo) = true, want false")
	}
	if ix.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", ix.Len())
	}
}

func TestManyKeysSurviveCollisions(t *testing.T) {
	ix := New(2) // only 4 buckets, forces chaining
	n := 500
	for i := 0; i < n; i++ {
		ix.Put([]byte(fmt.Sprintf("key-%d", i)), ptr(i))
	}
	if ix.Len() != n {
		t.Fatalf("Len() = %d, want %d", ix.Len(), n)
	}
	for i := 0; i < n; i++ {
		if _, ok := ix.Get([]byte(fmt.Sprintf("key-%d", i))); !ok {
			t.Fatalf("key-%d missing after bulk insert", i)
		}
	}
}

func TestEntryNodesAreRecycled(t *testing.T) {
	ix := New(4)
	ix.Put([]byte("a"), ptr(1))
	ix.Delete([]byte("a"))
	if ix.free == nil {
		t.Fatal("Delete did not park the node on the free list")
	}
	ix.Put([]byte("b"), ptr(2))
	if _, ok := ix.Get([]byte("b")); !ok {
		t.Fatal("Put after recycling a node lost the key")
	}
}

func TestNewPanicsOnInvalidHashPower(t *testing.T) {
	for _, hp := range []uint{0, 33} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("New(%d) did not panic", hp)
				}
			}()
			New(hp)
		}()
	}
}
