// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the HTTP layer and the services report to.
type Recorder interface {
	RecordRequest(method, route string, status int, latency time.Duration)
	RecordAuth(operation, outcome string)
}

type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	auth     *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "users_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "users_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "users_auth_events_total",
			Help: "Signup, login and logout attempts by outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(c.requests, c.latency, c.auth)
	return c
}

func (c *Collector) RecordRequest(method, route string, status int, latency time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method, route).Observe(latency.Seconds())
}

func (c *Collector) RecordAuth(operation, outcome string) {
	c.auth.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}

func (Nop) RecordAuth(string, string) {}
