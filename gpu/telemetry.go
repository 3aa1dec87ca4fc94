// Package gpu tracks the GPUs jobs may run on: operator availability, the last
// telemetry reading of each device and how many of our processes it hosts.
package gpu

import "time"

//go:generate mockgen -source=telemetry.go -package=gpu -destination=telemetry_mock.go

// Snapshot is one telemetry reading of a device. Memory is in MiB, power in watts.
type Snapshot struct {
	Name           string    `json:"name,omitempty"`
	TotalMemory    int64     `json:"total_memory_mib"`
	FreeMemory     int64     `json:"free_memory_mib"`
	UtilizationPct float64   `json:"utilization_pct"`
	Temperature    int       `json:"temperature_c"`
	PowerDraw      float64   `json:"power_draw_w"`
	PowerCap       float64   `json:"power_cap_w"`
	ProcessCount   int       `json:"process_count"`
	Time           time.Time `json:"time"`
}

// Telemetry reads live device state. Query may fail per call.
type Telemetry interface {
	DeviceCount() (int, error)
	Query(index int) (Snapshot, error)
}
