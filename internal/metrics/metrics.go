package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks relay activity for Prometheus scraping. Each collector
// owns its registry so tests can build them freely.
type Collector struct {
	registry *prometheus.Registry

	estimatesStarted prometheus.Counter
	fragmentsRelayed prometheus.Counter
	malformedFrames  prometheus.Counter
	upstreamFailures prometheus.Counter
	streamDuration   prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		estimatesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salary_estimates_started_total",
			Help: "Streaming estimate requests accepted for relay.",
		}),
		fragmentsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salary_fragments_relayed_total",
			Help: "Content fragments forwarded downstream.",
		}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salary_malformed_frames_total",
			Help: "Upstream frames dropped because they would not parse.",
		}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salary_upstream_failures_total",
			Help: "Completion calls that failed before or during streaming.",
		}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salary_stream_duration_seconds",
			Help:    "Wall time of one estimation stream, first byte to close.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.estimatesStarted,
		c.fragmentsRelayed,
		c.malformedFrames,
		c.upstreamFailures,
		c.streamDuration,
	)
	return c
}

func (c *Collector) RecordEstimateStarted() { c.estimatesStarted.Inc() }

func (c *Collector) RecordFragment() { c.fragmentsRelayed.Inc() }

func (c *Collector) RecordMalformedFrames(n int) {
	if n > 0 {
		c.malformedFrames.Add(float64(n))
	}
}

func (c *Collector) RecordUpstreamFailure() { c.upstreamFailures.Inc() }

func (c *Collector) ObserveStreamDuration(d time.Duration) {
	c.streamDuration.Observe(d.Seconds())
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
