package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes gateway, mirror and coordinator counters to a
// prometheus registry. A nil *Recorder drops every observation.
type Recorder struct {
	registry *prometheus.Registry

	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	mirrorTasks     *prometheus.CounterVec
	mirrorDepth     prometheus.GaugeFunc
	mutations       *prometheus.CounterVec
}

// NewRecorder registers the estimator collectors on a fresh registry. depth,
// when non-nil, reports the current mirror queue depth.
func NewRecorder(depth func() int) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estimator",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Remote gateway calls by action and outcome.",
		}, []string{"action", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "estimator",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Remote gateway round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estimator",
			Subsystem: "gateway",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by family and result.",
		}, []string{"family", "result"}),
		mirrorTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estimator",
			Subsystem: "mirror",
			Name:      "tasks_total",
			Help:      "Detached mirror tasks by action and status.",
		}, []string{"action", "status"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estimator",
			Subsystem: "coordinator",
			Name:      "mutations_total",
			Help:      "Local mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(r.gatewayCalls, r.gatewayDuration, r.cacheLookups, r.mirrorTasks, r.mutations)
	reg.MustRegister(collectors.NewGoCollector())
	if depth != nil {
		r.mirrorDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "estimator",
			Subsystem: "mirror",
			Name:      "queue_depth",
			Help:      "Mirror tasks waiting for a worker.",
		}, func() float64 { return float64(depth()) })
		reg.MustRegister(r.mirrorDepth)
	}
	return r
}

func (r *Recorder) ObserveGatewayCall(action, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.gatewayCalls.WithLabelValues(action, outcome).Inc()
	r.gatewayDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (r *Recorder) ObserveCache(family string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(family, result).Inc()
}

func (r *Recorder) ObserveMirror(action string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.mirrorTasks.WithLabelValues(action, status).Inc()
}

func (r *Recorder) ObserveMutation(operation, outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
