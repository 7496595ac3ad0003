// Package metrics owns the Prometheus registry and the collectors every
// realmgate component reports to.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realmgate"

// Registry wraps a private Prometheus registry with the realmgate collectors.
type Registry struct {
	prometheusRegistry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ChatClients       prometheus.Gauge
	ChatBroadcasts    prometheus.Counter
	ChatDropped       prometheus.Counter
	Logins            *prometheus.CounterVec
	GraphQLOperations *prometheus.CounterVec
}

// NewRegistry creates a registry with the realmgate collectors and the Go
// runtime and process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by component, method and status.",
		}, []string{"component", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by component.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		ChatClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_clients",
			Help:      "Currently connected chat clients.",
		}),
		ChatBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_broadcasts_total",
			Help:      "Messages fanned out to the chat channel.",
		}),
		ChatDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_dropped_clients_total",
			Help:      "Chat clients dropped because their send buffer was full.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login callbacks by outcome.",
		}, []string{"outcome"}),
		GraphQLOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_operations_total",
			Help:      "Executed GraphQL operations by result.",
		}, []string{"result"}),
	}

	r.prometheusRegistry.MustRegister(
		r.HTTPRequests,
		r.HTTPDuration,
		r.ChatClients,
		r.ChatBroadcasts,
		r.ChatDropped,
		r.Logins,
		r.GraphQLOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency for one component.
func (r *Registry) Middleware(component string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if coded, ok := err.(interface{ StatusCode() int }); ok {
					status = coded.StatusCode()
				} else {
					status = http.StatusInternalServerError
				}
			}

			r.HTTPRequests.WithLabelValues(component, c.Request().Method, strconv.Itoa(status)).Inc()
			r.HTTPDuration.WithLabelValues(component).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
