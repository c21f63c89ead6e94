package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "AeroTrend/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	httpMetricsOnce sync.Once
	httpMetricsInst *httpMetrics
)

func sharedHTTPMetrics() *httpMetrics {
	httpMetricsOnce.Do(func() {
		labels := []string{"route", "method", "class"}
		httpMetricsInst = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aerotrend_http_requests_total",
				Help: "HTTP requests by route template and status code.",
			}, []string{"route", "method", "status"}),
			// tick ingestion is expected in the low milliseconds
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "aerotrend_http_request_duration_seconds",
				Help:    "HTTP request duration.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2.5, 10),
			}, labels),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "aerotrend_http_response_size_bytes",
				Help:    "HTTP response body size.",
				Buckets: prometheus.ExponentialBuckets(128, 4, 7),
			}, labels),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "aerotrend_http_in_flight_requests",
				Help: "Requests being served.",
			}),
		}
	})
	return httpMetricsInst
}

// Metrics labels by route template rather than raw path, so session ids
// never become label values. Requests slower than slow are logged.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := sharedHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				// render now so the final status is known
				c.Error(err)
			}

			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method, code := c.Request().Method, c.Response().Status
			class := strconv.Itoa(code/100) + "xx"

			m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			m.latency.WithLabelValues(route, method, class).Observe(elapsed.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(c.Response().Size))

			if l != nil && slow > 0 && elapsed >= slow {
				l.Warn("slow http request",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("duration_ms", elapsed),
				)
			}
			return nil
		}
	}
}
