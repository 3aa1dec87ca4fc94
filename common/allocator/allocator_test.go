package allocator

import (
	"testing"
)

func TestSimpleAllocs(t *testing.T) {
	_, err := NewAbstractAllocator(-1)
	if err == nil {
		t.Fatal("expected error to allocate with negative capacity")
	}

	a, err := NewAbstractAllocator(4)
	if err != nil {
		t.Fatal(err)
	}

	r1, err := a.Alloc(3)
	if err != nil {
		t.Fatalf("error from Alloc: %s", err)
	}

	// try to allocate beyond capacity
	if _, err = a.Alloc(2); err == nil {
		t.Fatal("expected to fail to allocate beyond capacity")
	}

	// release and verify resources available
	r1.Release()
	r2, err := a.Alloc(1)
	if err != nil {
		t.Fatalf("Error from Alloc: %s", err)
	}
	if a.Allocated() != 1 || a.Available() != 3 {
		t.Fatalf("allocated/available don't match, got: %d/%d, want: 1/3", a.Allocated(), a.Available())
	}

	// verify double release does nothing
	r1.Release()
	if a.Allocated() != 1 {
		t.Fatalf("allocated amount doesn't match, got: %d, want: %d", a.Allocated(), 1)
	}

	// verify we can't release below 0
	r2.Release()
	r3 := &AbstractResource{size: 99, a: a}
	r3.Release()
	if a.Allocated() != 0 {
		t.Fatalf("allocated amount doesn't match, got: %d, want: %d", a.Allocated(), 0)
	}

	if _, err = a.Alloc(-1); err == nil {
		t.Fatal("expected error to allocate negative quantity")
	}
}

func TestSetCapacity(t *testing.T) {
	a, _ := NewAbstractAllocator(2)
	r1, _ := a.Alloc(1)
	r2, _ := a.Alloc(1)

	if err := a.SetCapacity(-3); err == nil {
		t.Fatal("expected error setting negative capacity")
	}
	if err := a.SetCapacity(1); err != nil {
		t.Fatal(err)
	}
	if a.Available() != 0 {
		t.Fatalf("expected nothing available after shrinking, got %d", a.Available())
	}
	r1.Release()
	if _, err := a.Alloc(1); err == nil {
		t.Fatal("expected shrunk capacity to still be full")
	}
	r2.Release()
	if _, err := a.Alloc(1); err != nil {
		t.Fatalf("expected alloc after draining, got %v", err)
	}
	if a.Capacity() != 1 {
		t.Fatalf("capacity doesn't match, got %d", a.Capacity())
	}
}
