package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the protection counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	joins         prometheus.Counter
	spikes        *prometheus.CounterVec
	kicks         *prometheus.CounterVec
	trackedGuilds prometheus.Gauge
	tickDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raidguard",
			Name:      "joins_recorded_total",
			Help:      "Member joins recorded into the join window.",
		}),
		spikes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raidguard",
			Name:      "spikes_detected_total",
			Help:      "Ticks where a guild reached its spike threshold.",
		}, []string{"mode"}),
		kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raidguard",
			Name:      "raid_kicks_total",
			Help:      "Automated raid kicks by result.",
		}, []string{"result"}),
		trackedGuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raidguard",
			Name:      "tracked_guilds",
			Help:      "Guilds with at least one join in the retention window.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "raidguard",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one detector tick.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.joins,
		m.spikes,
		m.kicks,
		m.trackedGuilds,
		m.tickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JoinRecorded() {
	if m == nil {
		return
	}
	m.joins.Inc()
}

func (m *Metrics) SpikeDetected(enabled bool) {
	if m == nil {
		return
	}
	mode := "disabled"
	if enabled {
		mode = "enabled"
	}
	m.spikes.WithLabelValues(mode).Inc()
}

func (m *Metrics) Kick(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.kicks.WithLabelValues(result).Inc()
}

func (m *Metrics) TickObserved(guilds int, took time.Duration) {
	if m == nil {
		return
	}
	m.trackedGuilds.Set(float64(guilds))
	m.tickDuration.Observe(took.Seconds())
}
