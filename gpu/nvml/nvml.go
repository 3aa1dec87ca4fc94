//go:build linux

// Package nvml reads GPU telemetry through the NVIDIA management library.
package nvml

import (
	"sync"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/gpu"
)

const mib = 1024 * 1024

// Telemetry queries devices by index. It must be closed to release NVML.
type Telemetry struct {
	mu     sync.Mutex
	closed bool
}

// New initializes NVML.
func New() (*Telemetry, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errors.Errorf("failed to initialize NVML: %s", nvml.ErrorString(ret))
	}
	if v, ret := nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		log.Infof("NVML initialized, driver version %s", v)
	}
	return &Telemetry{}, nil
}

func (t *Telemetry) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, errors.Errorf("failed to get device count: %s", nvml.ErrorString(ret))
	}
	return count, nil
}

// Query reads memory, utilization and process count, which are required,
// and name, temperature and power, which are left zero when unsupported.
func (t *Telemetry) Query(index int) (gpu.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return gpu.Snapshot{}, errors.Errorf("nvml telemetry closed")
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return gpu.Snapshot{}, errors.Errorf("failed to get handle for device %d: %s", index, nvml.ErrorString(ret))
	}

	snap := gpu.Snapshot{Time: time.Now()}

	memory, ret := device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return gpu.Snapshot{}, errors.Errorf("failed to get memory info for device %d: %s", index, nvml.ErrorString(ret))
	}
	snap.TotalMemory = int64(memory.Total / mib)
	snap.FreeMemory = int64(memory.Free / mib)

	util, ret := device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return gpu.Snapshot{}, errors.Errorf("failed to get utilization for device %d: %s", index, nvml.ErrorString(ret))
	}
	snap.UtilizationPct = float64(util.Gpu)

	procs, ret := device.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return gpu.Snapshot{}, errors.Errorf("failed to list processes on device %d: %s", index, nvml.ErrorString(ret))
	}
	snap.ProcessCount = len(procs)

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		snap.Name = name
	}
	if temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		snap.Temperature = int(temp)
	}
	if mw, ret := device.GetPowerUsage(); ret == nvml.SUCCESS {
		snap.PowerDraw = float64(mw) / 1000
	}
	if mw, ret := device.GetEnforcedPowerLimit(); ret == nvml.SUCCESS {
		snap.PowerCap = float64(mw) / 1000
	}
	return snap, nil
}

// Close shuts NVML down. Queries after Close fail.
func (t *Telemetry) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errors.Errorf("failed to shutdown NVML: %s", nvml.ErrorString(ret))
	}
	return nil
}
