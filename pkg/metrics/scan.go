package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scan modes and per-file results used as label values.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"

	ResultPassed   = "passed"
	ResultFailed   = "failed"
	ResultDeclined = "declined"
)

// ScanMetrics records bulk scan activity.
type ScanMetrics struct {
	files    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
}

// NewScanMetrics registers the scan metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metaphotor_scan_files_total",
		Help: "Media files handled by scans, by kind and result.",
	}, []string{"kind", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metaphotor_scan_duration_seconds",
		Help:    "Duration of complete scans in seconds.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
	}, []string{"mode"})
	running := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metaphotor_scan_running",
		Help: "1 while a scan is in progress.",
	})
	reg.MustRegister(files, duration, running)
	return &ScanMetrics{files: files, duration: duration, running: running}
}

// ObserveFile counts one file outcome.
func (m *ScanMetrics) ObserveFile(kind, result string) {
	if m == nil || m.files == nil {
		return
	}
	m.files.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

// ObserveDeclined counts n files declined at collection time.
func (m *ScanMetrics) ObserveDeclined(n int) {
	if m == nil || m.files == nil || n <= 0 {
		return
	}
	m.files.WithLabelValues("unknown", ResultDeclined).Add(float64(n))
}

// ObserveScan records the duration of a finished scan.
func (m *ScanMetrics) ObserveScan(mode string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(mode)).Observe(d.Seconds())
}

// SetRunning flips the in-progress gauge.
func (m *ScanMetrics) SetRunning(running bool) {
	if m == nil || m.running == nil {
		return
	}
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
