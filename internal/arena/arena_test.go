package arena

import "testing"

func TestAllocBumpsAndZeroes(t *testing.T) {
	a := New(32)
	b := a.Alloc(8)
	if b == nil {
		t.Fatal("Alloc(8): nil")
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0", i, v)
		}
	}
	b[0] = 1
	if a.Remaining() != 24 {
		t.Fatalf("Remaining() = %d, want 24", a.Remaining())
	}
}

func TestAllocFailsPastCapacity(t *testing.T) {
	a := New(8)
	if b := a.Alloc(9); b != nil {
		t.Fatalf("Alloc(9) on an 8-byte arena = %v, want nil", b)
	}
	if b := a.Alloc(8); b == nil {
		t.Fatal("Alloc(8) on an untouched 8-byte arena: nil")
	}
	if b := a.Alloc(1); b != nil {
		t.Fatalf("Alloc(1) on an exhausted arena = %v, want nil", b)
	}
}

func TestBytesReconstructsView(t *testing.T) {
	a := New(16)
	b := a.Alloc(8)
	b[3] = 0x42
	view := a.Bytes(0, 8)
	if view[3] != 0x42 {
		t.Fatalf("Bytes(0,8)[3] = %#x, want 0x42", view[3])
	}
}

func TestBytesOutOfRangePanics(t *testing.T) {
	a := New(16)
	defer func() {
		if recover() == nil {
			t.Fatal("Bytes out of range did not panic")
		}
	}()
	a.Bytes(10, 10)
}

func TestCap(t *testing.T) {
	a := New(128)
	if a.Cap() != 128 {
		t.Fatalf("Cap() = %d, want 128", a.Cap())
	}
}
