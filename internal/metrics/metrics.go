// Package metrics collects Prometheus metrics and exposes them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements core.ChatObserver and records HTTP traffic.
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	toolCalls        *prometheus.CounterVec
	upstreamFailures prometheus.Counter
	chatLatency      prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todo_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_chat_tool_calls_total",
			Help: "Tool calls executed for the assistant by tool and outcome.",
		}, []string{"tool", "outcome"}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_chat_upstream_failures_total",
			Help: "Chat turns that failed because the model was unavailable.",
		}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todo_chat_turn_duration_seconds",
			Help:    "Duration of a full chat turn including tool calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.toolCalls,
		c.upstreamFailures,
		c.chatLatency,
	)

	return c
}

// RecordHTTPRequest records one served request. route is the route pattern,
// not the raw path, to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) ObserveToolCall(tool string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (c *Collector) ObserveUpstreamFailure() {
	c.upstreamFailures.Inc()
}

func (c *Collector) ObserveTurn(duration time.Duration) {
	c.chatLatency.Observe(duration.Seconds())
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
