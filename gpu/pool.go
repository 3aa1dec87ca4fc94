package gpu

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/flowline/flowline/common/stats"
)

const (
	// Devices with less free memory than this are never chosen.
	DefaultMinFreeMemory int64 = 10000

	// Status() re-reads telemetry at most this often.
	DefaultStatusInterval = 2 * time.Second

	// Above this utilization a device is reported as busy.
	BusyUtilizationPct = 50
)

// ErrUnknownGPU is returned for ids outside the configured device count.
var ErrUnknownGPU = errors.New("unknown gpu")

// State is the operator facing summary of a device.
type State string

const (
	Disabled  State = "disabled"
	Busy      State = "busy"
	Available State = "available"
)

// PoolConfiguration variables read at initialization
// Count - number of devices, ids are 0..Count-1.
// Enabled - ids initially marked available, nil means all of them.
// MinFreeMemory - free memory floor in MiB used by Choose, 0 means
//
//	DefaultMinFreeMemory and a negative value disables the floor.
//
// StatusInterval - minimum time between telemetry refreshes triggered by Status.
type PoolConfiguration struct {
	Count          int
	Enabled        []int
	MinFreeMemory  int64
	StatusInterval time.Duration
}

// Status is the listing view of one device.
type Status struct {
	ID                   int      `json:"id"`
	Available            bool     `json:"available"`
	State                State    `json:"state"`
	Snapshot             Snapshot `json:"snapshot"`
	ExternalProcessCount int      `json:"external_process_count"`
	OwnedProcessCount    int      `json:"owned_process_count"`
	// Set when the last query failed and Snapshot is the previous reading.
	Stale     bool   `json:"stale"`
	LastError string `json:"last_error,omitempty"`
}

type device struct {
	available bool
	snap      Snapshot
	owned     int
	lastErr   error
}

// Pool owns availability flags, snapshots and ownership counters of every
// device behind one lock. Telemetry is always queried without holding it.
type Pool struct {
	mu        sync.Mutex
	telemetry Telemetry
	minFree   int64
	devices   []*device
	limiter   *rate.Limiter
	stat      stats.StatsReceiver
}

// NewPool returns a pool of config.Count devices. A zero Count asks telemetry for the device count.
func NewPool(telemetry Telemetry, config PoolConfiguration, stat stats.StatsReceiver) (*Pool, error) {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if config.Count == 0 {
		n, err := telemetry.DeviceCount()
		if err != nil {
			return nil, errors.Wrap(err, "counting devices")
		}
		config.Count = n
	}
	if config.Count < 0 {
		return nil, errors.Errorf("invalid gpu count %d", config.Count)
	}
	if config.MinFreeMemory == 0 {
		config.MinFreeMemory = DefaultMinFreeMemory
	}
	if config.StatusInterval == 0 {
		config.StatusInterval = DefaultStatusInterval
	}

	p := &Pool{
		telemetry: telemetry,
		minFree:   config.MinFreeMemory,
		devices:   make([]*device, config.Count),
		limiter:   rate.NewLimiter(rate.Every(config.StatusInterval), 1),
		stat:      stat,
	}
	for i := range p.devices {
		p.devices[i] = &device{available: config.Enabled == nil}
	}
	for _, id := range config.Enabled {
		if id < 0 || id >= config.Count {
			return nil, errors.Wrapf(ErrUnknownGPU, "enabled gpu %d with %d devices", id, config.Count)
		}
		p.devices[id].available = true
	}
	p.updateAvailableGauge()
	log.WithFields(
		log.Fields{
			"count":         config.Count,
			"enabled":       config.Enabled,
			"minFreeMemory": config.MinFreeMemory,
		}).Info("Created gpu pool")
	return p, nil
}

// Count is the number of devices in the pool.
func (p *Pool) Count() int {
	return len(p.devices)
}

type reading struct {
	id   int
	snap Snapshot
	err  error
}

func (p *Pool) query(ids []int) []reading {
	out := make([]reading, 0, len(ids))
	for _, id := range ids {
		l := p.stat.Latency(stats.GpuQueryLatency_ms).Time()
		snap, err := p.telemetry.Query(id)
		l.Stop()
		if err == nil && snap.Time.IsZero() {
			snap.Time = time.Now()
		}
		out = append(out, reading{id, snap, err})
	}
	return out
}

// record stores r, keeping the prior snapshot if the query failed. Must hold p.mu.
func (p *Pool) record(r reading) {
	d := p.devices[r.id]
	if r.err != nil {
		d.lastErr = r.err
		p.stat.Counter(stats.GpuTelemetryErrCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"gpuID": r.id,
				"err":   r.err,
			}).Warn("GPU telemetry query failed, keeping previous snapshot")
		return
	}
	d.snap = r.snap
	d.lastErr = nil
}

// RefreshAll queries every device and stores the results. A failed query
// keeps that device's previous snapshot and never stops the others.
func (p *Pool) RefreshAll() {
	ids := make([]int, len(p.devices))
	for i := range ids {
		ids[i] = i
	}
	readings := p.query(ids)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range readings {
		p.record(r)
	}
}

// Choose returns the available device with the lowest utilization among those
// with at least the configured free memory, preferring more free memory and
// then the lower id on ties. Every candidate is queried live; candidates whose
// query fails are skipped. ok is false when nothing qualifies.
func (p *Pool) Choose() (id int, ok bool) {
	p.mu.Lock()
	candidates := make([]int, 0, len(p.devices))
	for i, d := range p.devices {
		if d.available {
			candidates = append(candidates, i)
		}
	}
	p.mu.Unlock()
	if len(candidates) == 0 {
		return 0, false
	}

	readings := p.query(candidates)

	p.mu.Lock()
	defer p.mu.Unlock()
	var best *Snapshot
	for _, r := range readings {
		p.record(r)
		// Availability may have been switched off while we were querying.
		if r.err != nil || !p.devices[r.id].available {
			continue
		}
		if p.minFree >= 0 && r.snap.FreeMemory < p.minFree {
			continue
		}
		snap := r.snap
		if best == nil || better(snap, *best) {
			best, id = &snap, r.id
		}
	}
	return id, best != nil
}

// better reports whether a beats b. Equal readings keep b, the lower id.
func better(a, b Snapshot) bool {
	if a.UtilizationPct != b.UtilizationPct {
		return a.UtilizationPct < b.UtilizationPct
	}
	return a.FreeMemory > b.FreeMemory
}

// SetAvailable sets the operator flag of a device. Processes already running
// on it are not affected.
func (p *Pool) SetAvailable(id int, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.devices) {
		return errors.Wrapf(ErrUnknownGPU, "gpu %d", id)
	}
	p.devices[id].available = on
	p.updateAvailableGaugeLocked()
	log.WithFields(
		log.Fields{
			"gpuID":     id,
			"available": on,
		}).Info("Set gpu availability")
	return nil
}

// Toggle flips the availability of a device and returns the new value.
func (p *Pool) Toggle(id int) (bool, error) {
	p.mu.Lock()
	if id < 0 || id >= len(p.devices) {
		p.mu.Unlock()
		return false, errors.Wrapf(ErrUnknownGPU, "gpu %d", id)
	}
	on := !p.devices[id].available
	p.mu.Unlock()
	return on, p.SetAvailable(id, on)
}

// IsAvailable returns the operator flag of a device.
func (p *Pool) IsAvailable(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return id >= 0 && id < len(p.devices) && p.devices[id].available
}

// UpdateOwnedCount adjusts how many of our processes run on a device. The
// count never goes below zero.
func (p *Pool) UpdateOwnedCount(id int, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.devices) {
		return errors.Wrapf(ErrUnknownGPU, "gpu %d", id)
	}
	d := p.devices[id]
	d.owned += delta
	if d.owned < 0 {
		log.WithFields(
			log.Fields{
				"gpuID": id,
				"delta": delta,
			}).Warn("Owned process count went negative, clamping to 0")
		d.owned = 0
	}
	return nil
}

// OwnedCount returns how many of our processes run on a device.
func (p *Pool) OwnedCount(id int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.devices) {
		return 0
	}
	return p.devices[id].owned
}

// Status lists every device, refreshing telemetry first unless a refresh
// happened less than the configured interval ago.
func (p *Pool) Status() []Status {
	if p.limiter.Allow() {
		p.RefreshAll()
	}
	return p.Snapshots()
}

// Snapshots lists every device from stored readings only.
func (p *Pool) Snapshots() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, len(p.devices))
	for i, d := range p.devices {
		ext := d.snap.ProcessCount - d.owned
		if ext < 0 {
			ext = 0
		}
		s := Status{
			ID:                   i,
			Available:            d.available,
			State:                stateOf(d),
			Snapshot:             d.snap,
			ExternalProcessCount: ext,
			OwnedProcessCount:    d.owned,
			Stale:                d.lastErr != nil,
		}
		if d.lastErr != nil {
			s.LastError = d.lastErr.Error()
		}
		out[i] = s
	}
	return out
}

func stateOf(d *device) State {
	switch {
	case !d.available:
		return Disabled
	case d.snap.UtilizationPct > BusyUtilizationPct:
		return Busy
	default:
		return Available
	}
}

func (p *Pool) updateAvailableGauge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateAvailableGaugeLocked()
}

func (p *Pool) updateAvailableGaugeLocked() {
	n := 0
	for _, d := range p.devices {
		if d.available {
			n++
		}
	}
	p.stat.Gauge(stats.GpuAvailableGauge).Update(int64(n))
}
