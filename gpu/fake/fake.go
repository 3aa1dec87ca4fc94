// Package fake provides a gpu.Telemetry serving operator supplied readings,
// for tests and for hosts without GPUs.
package fake

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/flowline/flowline/gpu"
)

// Telemetry returns whatever snapshot was last Set for a device.
type Telemetry struct {
	mu      sync.Mutex
	count   int
	snaps   map[int]gpu.Snapshot
	errs    map[int]error
	queries map[int]int
}

// NewTelemetry returns count devices, each reporting snap.
func NewTelemetry(count int, snap gpu.Snapshot) *Telemetry {
	t := &Telemetry{
		count:   count,
		snaps:   map[int]gpu.Snapshot{},
		errs:    map[int]error{},
		queries: map[int]int{},
	}
	for i := 0; i < count; i++ {
		t.snaps[i] = snap
	}
	return t
}

// Idle is a reading of an unused 24GiB device.
func Idle() gpu.Snapshot {
	return gpu.Snapshot{Name: "fake", TotalMemory: 24576, FreeMemory: 24576, PowerCap: 300}
}

func (t *Telemetry) Set(index int, snap gpu.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snaps[index] = snap
}

// Fail makes queries of index return err until cleared with a nil err.
func (t *Telemetry) Fail(index int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.errs, index)
		return
	}
	t.errs[index] = err
}

// Queries returns how many times index was queried.
func (t *Telemetry) Queries(index int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queries[index]
}

func (t *Telemetry) DeviceCount() (int, error) {
	return t.count, nil
}

func (t *Telemetry) Query(index int) (gpu.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries[index]++
	if err, ok := t.errs[index]; ok {
		return gpu.Snapshot{}, err
	}
	snap, ok := t.snaps[index]
	if !ok {
		return gpu.Snapshot{}, errors.Errorf("no such device %d", index)
	}
	return snap, nil
}
