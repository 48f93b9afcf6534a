// Package metrics exports the Prometheus gauges and counters that matter
// for this platform: how deep the work queue is, how long matches take,
// how many containers are live, and how often the compile cache pays off.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every exported collector. Access it through Get(), which
// registers everything exactly once.
type Metrics struct {
	WorkQueueDepth       *prometheus.GaugeVec
	WorkItemsTotal       *prometheus.CounterVec
	MatchDuration        prometheus.Histogram
	MatchesTotal         *prometheus.CounterVec
	ActiveContainers     prometheus.Gauge
	CompileCacheHits     prometheus.Counter
	CompileCacheMisses   prometheus.Counter
	CompileDuration      prometheus.Histogram
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide Metrics instance, registering its
// collectors with the default Prometheus registry on first call.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		WorkQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fairplay_work_queue_depth",
			Help: "Number of work items currently in each status.",
		}, []string{"status"}),
		WorkItemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fairplay_work_items_total",
			Help: "Work items dispatched, by type and final status.",
		}, []string{"type", "status"}),
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fairplay_match_duration_seconds",
			Help:    "Wall-clock duration of completed matches.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		MatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fairplay_matches_total",
			Help: "Matches completed, by game.",
		}, []string{"game"}),
		ActiveContainers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fairplay_active_containers",
			Help: "Sandboxed containers currently running.",
		}),
		CompileCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fairplay_compile_cache_hits_total",
			Help: "Compilation requests served from the content-addressed cache.",
		}),
		CompileCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fairplay_compile_cache_misses_total",
			Help: "Compilation requests that required a fresh build.",
		}),
		CompileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fairplay_compile_duration_seconds",
			Help:    "Duration of fresh (cache-miss) compilations.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordMatch records one completed match's duration and game.
func (m *Metrics) RecordMatch(game string, duration time.Duration) {
	m.MatchDuration.Observe(duration.Seconds())
	m.MatchesTotal.WithLabelValues(game).Inc()
}

// RecordWorkItem records a dispatched work item's terminal status.
func (m *Metrics) RecordWorkItem(workType, status string) {
	m.WorkItemsTotal.WithLabelValues(workType, status).Inc()
}

// RecordCompile records whether a compile request hit the cache, and if
// not, how long the fresh build took.
func (m *Metrics) RecordCompile(hit bool, duration time.Duration) {
	if hit {
		m.CompileCacheHits.Inc()
		return
	}
	m.CompileCacheMisses.Inc()
	m.CompileDuration.Observe(duration.Seconds())
}
