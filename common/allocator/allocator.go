// Package allocator provides tools for centralized management
// of a common resource by multiple clients.
package allocator

import (
	"sync"

	"github.com/pkg/errors"
)

// AbstractAllocator controls access to an abstract pool of resources of a specified capacity.
// Abstract in this sense means the resources don't represent a physical resource,
// only a limit on overall concurrent usage by a set of clients.
// The supervisor uses one slot per managed process.
type AbstractAllocator struct {
	mu        sync.Mutex
	capacity  int64
	allocated int64
}

// NewAbstractAllocator returns a new *AbstractAllocator initialized with a set capacity.
// Returns an error if capacity is < 0. Typical usage of this allocator:
//
//	a := NewAbstractAllocator(4)
//	r, err := a.Alloc(1)
//	// handle err
//	defer r.Release()
func NewAbstractAllocator(c int64) (*AbstractAllocator, error) {
	if c < 0 {
		return nil, errors.Errorf("invalid capacity %d < 0", c)
	}
	return &AbstractAllocator{capacity: c}, nil
}

// Alloc returns a resource of an indicated size or an error.
// If error is nil, a non-nil *AbstractResource is returned, which the client must
// Release when finished, or a resource leak will result.
func (a *AbstractAllocator) Alloc(size int64) (*AbstractResource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if size < 0 {
		return nil, errors.Errorf("invalid size %d < 0", size)
	}
	if a.allocated+size > a.capacity {
		return nil, errors.Errorf(
			"alloc request: %d exceeds capacity: %d (current allocation: %d)", size, a.capacity, a.allocated)
	}
	a.allocated += size
	return &AbstractResource{size: size, a: a}, nil
}

// SetCapacity changes the capacity. Outstanding resources are unaffected; if
// the new capacity is below the current allocation, new Allocs fail until enough
// resources are released.
func (a *AbstractAllocator) SetCapacity(c int64) error {
	if c < 0 {
		return errors.Errorf("invalid capacity %d < 0", c)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capacity = c
	return nil
}

// Capacity returns the configured capacity.
func (a *AbstractAllocator) Capacity() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity
}

// Allocated returns the amount currently held by clients.
func (a *AbstractAllocator) Allocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

// Available returns how much can still be allocated, never negative.
func (a *AbstractAllocator) Available() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allocated >= a.capacity {
		return 0
	}
	return a.capacity - a.allocated
}

func (a *AbstractAllocator) release(r *AbstractResource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocated -= r.size
	if a.allocated < 0 {
		a.allocated = 0
	}
	// unset the resource to prevent accidental double-releasing
	r.size = 0
}

// AbstractResource represents some amount of resources granted
// by an AbstractAllocator and held by a client.
type AbstractResource struct {
	size int64
	a    *AbstractAllocator
}

// Release returns a given resource back to the allocator that created this
// resource. Releasing a nil or previously released resource does nothing.
func (r *AbstractResource) Release() {
	if r != nil && r.a != nil {
		r.a.release(r)
	}
}
