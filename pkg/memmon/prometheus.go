package memmon

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter exposes a Monitor's aggregates as Prometheus
// metrics. Each scrape performs a fresh Read, so the exported figures
// are live; aggregate keys are open-ended across device families and
// therefore exported as a single gauge vector labeled by metric name.
type PrometheusExporter struct {
	monitor *Monitor
	logger  *slog.Logger

	memoryBytes *prometheus.GaugeVec
	disabled    prometheus.Gauge
}

// NewPrometheusExporter creates an exporter for the given monitor.
// If logger is nil, slog.Default() is used.
func NewPrometheusExporter(monitor *Monitor, logger *slog.Logger) *PrometheusExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusExporter{
		monitor: monitor,
		logger:  logger,
		memoryBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memtrack_memory_bytes",
				Help: "Device memory aggregates by metric name",
			},
			[]string{"device", "metric"},
		),
		disabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memtrack_monitor_disabled",
				Help: "1 if the memory monitor is disabled, 0 otherwise",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	e.memoryBytes.Describe(ch)
	e.disabled.Describe(ch)
}

// Collect implements prometheus.Collector.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if e.monitor.Disabled() {
		e.disabled.Set(1)
	} else {
		e.disabled.Set(0)
	}

	data, err := e.monitor.Read()
	if err != nil {
		e.logger.Warn("metrics read failed", "error", err)
	} else {
		dev := e.monitor.Device().String()
		for k, v := range data {
			e.memoryBytes.WithLabelValues(dev, k).Set(float64(v))
		}
	}

	e.memoryBytes.Collect(ch)
	e.disabled.Collect(ch)
}
