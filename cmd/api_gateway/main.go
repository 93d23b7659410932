package main

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/ridloal/retail-analytics-engine/internal/platform/config"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/middleware"
	"github.com/ridloal/retail-analytics-engine/internal/platform/server"
)

func newSingleHostReverseProxy(targetHost string) (*httputil.ReverseProxy, error) {
	targetURL, err := url.Parse(targetHost)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target URL '%s': %w", targetHost, err)
	}
	if targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, fmt.Errorf("target URL '%s' needs a scheme and host", targetHost)
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
		logger.Error(fmt.Sprintf("Gateway: proxy error for %s %s to %s", req.Method, req.URL.Path, targetURL), err)
		http.Error(rw, "Service unavailable or proxy error", http.StatusBadGateway)
	}
	return proxy, nil
}

// newGateway routes each configured prefix to its service and wraps the mux in
// metrics, trusted host, security header and rate limit middleware, outermost first.
func newGateway(routes []config.ServiceEndpoint, sec config.SecurityConfig, m *metrics.Registry, limiter *middleware.RateLimiter) (http.Handler, error) {
	mux := http.NewServeMux()
	for _, route := range routes {
		proxy, err := newSingleHostReverseProxy(route.URL)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route.Prefix, err)
		}
		mux.Handle(route.Prefix, proxy)
		logger.Info("Routing %s to %s service at %s", route.Prefix, route.Name, route.URL)
	}

	var handler http.Handler = mux
	handler = limiter.Middleware(handler)
	handler = middleware.SecurityHeaders(sec.CORSOrigins)(handler)
	handler = middleware.TrustedHosts(sec.AllowedHosts)(handler)
	handler = middleware.RequestMetrics(m, middleware.PathPrefix(3))(handler)
	return handler, nil
}

// newRootHandler serves the gateway's own endpoints next to the proxied
// routes. Metrics only answer on trusted hosts and count against the limiter.
func newRootHandler(gateway http.Handler, sec config.SecurityConfig, m *metrics.Registry, limiter *middleware.RateLimiter) http.Handler {
	root := http.NewServeMux()
	root.Handle("/metrics", middleware.TrustedHosts(sec.AllowedHosts)(limiter.Middleware(m.Handler())))
	root.HandleFunc("/gateway/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","service":"gateway"}`)
	})
	root.Handle("/", gateway)
	return root
}

func main() {
	defer logger.Sync()

	cfg := config.LoadGatewayConfig()
	secCfg := config.LoadSecurityConfig()
	logger.Info("Starting API Gateway on port " + cfg.ListenPort)

	proxies, err := middleware.ParseTrustedProxies(secCfg.TrustedProxies)
	if err != nil {
		logger.Error("API Gateway configuration failed", err)
		return
	}

	m := metrics.NewRegistry()
	limiter := middleware.NewRateLimiter(secCfg.RateLimit, secCfg.RateWindow, m.RateLimitHits.Inc)
	limiter.TrustProxies(proxies)
	defer limiter.Stop()

	gateway, err := newGateway(cfg.Routes(), secCfg, m, limiter)
	if err != nil {
		logger.Error("API Gateway configuration failed", err)
		return
	}

	if err := server.Run("API Gateway", ":"+cfg.ListenPort, newRootHandler(gateway, secCfg, m, limiter)); err != nil {
		logger.Error("API Gateway failed to start or crashed", err)
	}
}
