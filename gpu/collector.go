package gpu

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the pool's stored readings as Prometheus gauges. It never
// queries telemetry itself, scrapes see what the last refresh or choice saw.
type Collector struct {
	pool *Pool

	freeMemory  *prometheus.Desc
	totalMemory *prometheus.Desc
	utilization *prometheus.Desc
	temperature *prometheus.Desc
	powerDraw   *prometheus.Desc
	owned       *prometheus.Desc
	external    *prometheus.Desc
	available   *prometheus.Desc
}

func NewCollector(pool *Pool) *Collector {
	labels := []string{"gpu"}
	return &Collector{
		pool:        pool,
		freeMemory:  prometheus.NewDesc("flowline_gpu_free_memory_mib", "Free device memory in MiB", labels, nil),
		totalMemory: prometheus.NewDesc("flowline_gpu_total_memory_mib", "Total device memory in MiB", labels, nil),
		utilization: prometheus.NewDesc("flowline_gpu_utilization_percent", "Device utilization", labels, nil),
		temperature: prometheus.NewDesc("flowline_gpu_temperature_celsius", "Device temperature", labels, nil),
		powerDraw:   prometheus.NewDesc("flowline_gpu_power_draw_watts", "Device power draw", labels, nil),
		owned:       prometheus.NewDesc("flowline_gpu_owned_processes", "Processes started by the scheduler on the device", labels, nil),
		external:    prometheus.NewDesc("flowline_gpu_external_processes", "Processes on the device not started by the scheduler", labels, nil),
		available:   prometheus.NewDesc("flowline_gpu_available", "1 if the device may be chosen for new work", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.freeMemory
	ch <- c.totalMemory
	ch <- c.utilization
	ch <- c.temperature
	ch <- c.powerDraw
	ch <- c.owned
	ch <- c.external
	ch <- c.available
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.pool.Snapshots() {
		id := strconv.Itoa(s.ID)
		avail := 0.0
		if s.Available {
			avail = 1
		}
		ch <- prometheus.MustNewConstMetric(c.freeMemory, prometheus.GaugeValue, float64(s.Snapshot.FreeMemory), id)
		ch <- prometheus.MustNewConstMetric(c.totalMemory, prometheus.GaugeValue, float64(s.Snapshot.TotalMemory), id)
		ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, s.Snapshot.UtilizationPct, id)
		ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, float64(s.Snapshot.Temperature), id)
		ch <- prometheus.MustNewConstMetric(c.powerDraw, prometheus.GaugeValue, s.Snapshot.PowerDraw, id)
		ch <- prometheus.MustNewConstMetric(c.owned, prometheus.GaugeValue, float64(s.OwnedProcessCount), id)
		ch <- prometheus.MustNewConstMetric(c.external, prometheus.GaugeValue, float64(s.ExternalProcessCount), id)
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, avail, id)
	}
}
