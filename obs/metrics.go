// Package obs carries the gateway's observability plumbing: Prometheus
// metrics, the fiber instrumentation middleware, and logger setup.
package obs

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "authgate",
		Name:      "http_in_flight_requests",
		Help:      "Number of HTTP requests currently being served.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthAttempts counts credential resolutions by chain and outcome
	// ("granted" or the rejection type).
	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "auth_attempts_total",
		Help:      "Credential resolution attempts by chain and outcome.",
	}, []string{"chain", "outcome"})

	// RateLimitRejections counts 429s by limiter scope class.
	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected by the rate limiter, by scope class.",
	}, []string{"scope"})

	registerOnce sync.Once
)

// Init registers the gateway's metrics with the default registry. Safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			AuthAttempts,
			RateLimitRejections,
		)
	})
}

// Handler serves the Prometheus text exposition.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Instrument records request count, latency and in-flight gauge. Uses the
// matched route pattern, not the raw path, to keep label cardinality
// bounded.
func Instrument() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()

		err := c.Next()

		httpInFlight.Dec()
		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}
