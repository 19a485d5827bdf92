package metrics

import (
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "cruxbuild"

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	registry        *prom.Registry
	restoreDuration *prom.HistogramVec
	dumpDuration    *prom.HistogramVec
	slotBytes       *prom.GaugeVec
	buildDuration   *prom.HistogramVec
	buildOutcomes   *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		restoreDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_restore_duration_seconds",
			Help:      "Time spent restoring one cache entry into a build environment",
			Buckets:   prom.DefBuckets,
		}, []string{"entry", "outcome"}),
		dumpDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_dump_duration_seconds",
			Help:      "Time spent pruning, snapshotting and persisting one cache entry",
			Buckets:   prom.DefBuckets,
		}, []string{"entry", "outcome"}),
		slotBytes: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_slot_bytes",
			Help:      "Size of a cache slot on the host after the last dump",
		}, []string{"namespace", "key"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration per target",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"target"}),
		buildOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Builds by target and final status",
		}, []string{"target", "outcome"}),
	}
	reg.MustRegister(pr.restoreDuration, pr.dumpDuration, pr.slotBytes, pr.buildDuration, pr.buildOutcomes)
	return pr
}

func (p *PrometheusRecorder) ObserveRestore(entry string, d time.Duration, outcome Outcome) {
	p.restoreDuration.WithLabelValues(entry, string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveDump(entry string, d time.Duration, outcome Outcome) {
	p.dumpDuration.WithLabelValues(entry, string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetSlotBytes(ns, key string, bytes int64) {
	p.slotBytes.WithLabelValues(ns, key).Set(float64(bytes))
}

func (p *PrometheusRecorder) ObserveBuild(target string, d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	p.buildDuration.WithLabelValues(target).Observe(d.Seconds())
	p.buildOutcomes.WithLabelValues(target, outcome).Inc()
}

// Gatherer exposes the underlying registry.
func (p *PrometheusRecorder) Gatherer() prom.Gatherer {
	return p.registry
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format. The parent directory is created if missing; the write itself is
// atomic (temp file + rename).
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prom.WriteToTextfile(path, p.registry)
}
