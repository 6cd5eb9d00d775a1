// Package metrics holds the prometheus instruments for upstream fetches.
// Each Metrics owns its registry so tests and one-shot CLI runs never share
// global collectors
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records upstream request, page and cache activity
type Metrics struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestSeconds  *prometheus.HistogramVec
	RecordsTotal    *prometheus.CounterVec
	PagesTotal      *prometheus.CounterVec
	CacheTotal      *prometheus.CounterVec
	RunSeconds      prometheus.Gauge
	SourceFailTotal *prometheus.CounterVec
}

// New builds and registers all instruments on a fresh registry
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logrep_upstream_requests_total",
			Help: "Upstream HTTP requests by service, endpoint and status class",
		}, []string{"service", "endpoint", "status"}),
		RequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logrep_upstream_request_seconds",
			Help:    "Upstream HTTP request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		}, []string{"service", "endpoint"}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logrep_records_fetched_total",
			Help: "Records received from upstream pages",
		}, []string{"service", "endpoint"}),
		PagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logrep_pages_fetched_total",
			Help: "Pages received from upstream",
		}, []string{"service", "endpoint"}),
		CacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logrep_cache_lookups_total",
			Help: "Disk cache lookups by service and result",
		}, []string{"service", "result"}),
		RunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logrep_run_seconds",
			Help: "Wall time of the last aggregation run",
		}),
		SourceFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logrep_source_failures_total",
			Help: "Endpoints that ended a fetch with an error, by error code",
		}, []string{"service", "code"}),
	}
	m.reg.MustRegister(
		m.RequestsTotal,
		m.RequestSeconds,
		m.RecordsTotal,
		m.PagesTotal,
		m.CacheTotal,
		m.RunSeconds,
		m.SourceFailTotal,
	)
	return m
}

// Registry exposes the underlying registry (e.g. for an HTTP handler or textfile)
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Request records one finished upstream request; status 0 means transport failure
func (m *Metrics) Request(service, endpoint string, status int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(service, endpoint, statusClass(status, err)).Inc()
	m.RequestSeconds.WithLabelValues(service, endpoint).Observe(d.Seconds())
}

// Page records one decoded page of records
func (m *Metrics) Page(service, endpoint string, records int) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(service, endpoint).Inc()
	m.RecordsTotal.WithLabelValues(service, endpoint).Add(float64(records))
}

// Cache records a disk cache lookup
func (m *Metrics) Cache(service string, hit bool) {
	if m == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	m.CacheTotal.WithLabelValues(service, res).Inc()
}

// Failure records an endpoint that finished with an error code name
func (m *Metrics) Failure(service, code string) {
	if m == nil {
		return
	}
	m.SourceFailTotal.WithLabelValues(service, code).Inc()
}

// Run records the duration of an aggregation run
func (m *Metrics) Run(d time.Duration) {
	if m == nil {
		return
	}
	m.RunSeconds.Set(d.Seconds())
}

// WriteTextfile writes all metrics in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

func statusClass(status int, err error) string {
	if status == 0 {
		if err != nil {
			return "error"
		}
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
