package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestMetrics counts requests and observes latency per method and
// endpoint. endpointOf maps a request to a low cardinality label.
func RequestMetrics(m *metrics.Registry, endpointOf func(*http.Request) string) func(http.Handler) http.Handler {
	if endpointOf == nil {
		endpointOf = PathPrefix(3)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			endpoint := endpointOf(r)
			m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
			m.RequestLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		})
	}
}

// PathPrefix keeps the first n path segments, e.g. /api/v1/products/42 -> /api/v1/products.
func PathPrefix(n int) func(*http.Request) string {
	return func(r *http.Request) string {
		parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", n+1)
		if len(parts) > n {
			parts = parts[:n]
		}
		return "/" + strings.Join(parts, "/")
	}
}

// GinMetrics records the same series using gin's matched route template.
func GinMetrics(m *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestLatency.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
