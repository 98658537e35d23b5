// Package telemetry exposes simulation and API metrics for Prometheus.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/statecraft/internal/engine"
)

const namespace = "statecraft"

// Recorder owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Recorder struct {
	reg *prometheus.Registry

	ticks       prometheus.Counter
	simMinutes  prometheus.Counter
	tasks       *prometheus.CounterVec
	reportLines prometheus.Counter
	elapsed     prometheus.Gauge
	pending     prometheus.Gauge
	price       prometheus.Gauge
	multiplier  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
}

// NewRecorder registers every metric on a fresh registry. Process and Go
// runtime collectors are included.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Ticks run by the orchestrator.",
		}),
		simMinutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "simulated_minutes_total",
			Help: "Simulated minutes advanced.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_total",
			Help: "Fired tasks by kind and outcome.",
		}, []string{"kind", "status"}),
		reportLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_lines_total",
			Help: "Report lines produced.",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "elapsed_minutes",
			Help: "Simulated minutes since the base date.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_tasks",
			Help: "Tasks waiting in the scheduler.",
		}),
		price: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "commodity_price",
			Help: "Current commodity market price.",
		}),
		multiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "time_multiplier",
			Help: "Clock multiplier, display precision.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "active_requests",
			Help: "Requests in flight.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ticks, r.simMinutes, r.tasks, r.reportLines,
		r.elapsed, r.pending, r.price, r.multiplier,
		r.httpRequests, r.httpDuration, r.httpActive,
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the recorder's metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveTick records a finished tick.
func (r *Recorder) ObserveTick(rep engine.TickReport) {
	r.ticks.Inc()
	r.simMinutes.Add(float64(rep.Advanced))
	r.reportLines.Add(float64(len(rep.Lines)))
	r.elapsed.Set(float64(rep.Elapsed))
	for _, o := range rep.Outcomes {
		r.tasks.WithLabelValues(o.Kind.String(), o.Status.String()).Inc()
	}
}

// ObserveStatus records the gauges derived from the simulation status.
func (r *Recorder) ObserveStatus(st engine.TimeStatus) {
	r.elapsed.Set(float64(st.Elapsed))
	r.pending.Set(float64(st.Pending))
	r.price.Set(st.CommodityPrice)
	if v, err := strconv.ParseFloat(st.DisplayMultiplier, 64); err == nil {
		r.multiplier.Set(v)
	}
}
