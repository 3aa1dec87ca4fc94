//go:build !linux

package nvml

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/flowline/flowline/gpu"
)

type Telemetry struct{}

func New() (*Telemetry, error) {
	return nil, errors.Errorf("NVML telemetry is not supported on %s", runtime.GOOS)
}

func (t *Telemetry) DeviceCount() (int, error)             { return 0, errors.Errorf("nvml unavailable") }
func (t *Telemetry) Query(index int) (gpu.Snapshot, error) { return gpu.Snapshot{}, errors.Errorf("nvml unavailable") }
func (t *Telemetry) Close() error                          { return nil }
