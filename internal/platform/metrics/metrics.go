package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the process metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	RequestCount     *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
	AuthAttempts     *prometheus.CounterVec
	FailedLogins     *prometheus.CounterVec
	RateLimitHits    prometheus.Counter
	AnalyticsQueries *prometheus.CounterVec
	ProductViews     prometheus.Counter
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		}, []string{"method", "endpoint", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts",
		}, []string{"result"}),
		FailedLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failed_logins_total",
			Help: "Failed login attempts",
		}, []string{"reason"}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Rate limit hits",
		}),
		AnalyticsQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_queries_total",
			Help: "Analytics queries executed",
		}, []string{"query_type"}),
		ProductViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "product_views_total",
			Help: "Product views",
		}),
	}
	r.reg.MustRegister(
		r.RequestCount, r.RequestLatency, r.AuthAttempts, r.FailedLogins,
		r.RateLimitHits, r.AnalyticsQueries, r.ProductViews,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
