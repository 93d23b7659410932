package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/service"
	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/config"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardPage = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"money":   service.Money,
	"percent": service.Percent,
}).ParseFS(templateFS, "templates/dashboard.html"))

type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
	tokens           *auth.TokenManager
	environment      string
	started          time.Time
}

func NewAnalyticsHandler(as service.AnalyticsService, tm *auth.TokenManager, environment string) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: as,
		tokens:           tm,
		environment:      environment,
		started:          time.Now(),
	}
}

// RegisterPublicRoutes mounts the demo page and the unauthenticated /api/test
// endpoints, which always serve the static demo data set.
func (h *AnalyticsHandler) RegisterPublicRoutes(router gin.IRoutes) {
	router.GET("/", h.Home)
	router.GET("/api/test/dashboard", h.TestDashboard)
	router.GET("/api/test/products", h.TestProducts)
	router.GET("/api/test/categories", h.TestCategories)
	router.GET("/api/test/health", h.TestHealth)
	router.GET("/api/health", h.Health)
}

func (h *AnalyticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	analyticsRoutes := router.Group("/analytics", auth.RequireAuth(h.tokens))
	{
		analyticsRoutes.GET("/dashboard", h.Dashboard)
		analyticsRoutes.POST("/query", h.Query)
		analyticsRoutes.GET("/queries", auth.RequireRole("admin"), h.RecentQueries)
		analyticsRoutes.GET("/products/:id/performance", h.ProductPerformance)
		analyticsRoutes.GET("/products/:id/recommendations", h.Recommendations)
		analyticsRoutes.POST("/imports", auth.RequireRole("admin", "analyst"), h.ImportSales)
	}
}

func callerFrom(c *gin.Context) domain.Caller {
	caller := domain.Caller{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if claims, ok := auth.ClaimsFrom(c); ok {
		caller.Subject = claims.Subject
	}
	return caller
}

func envelope(status, message string, data interface{}) gin.H {
	return gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"data":      data,
		"message":   message,
	}
}

func (h *AnalyticsHandler) Home(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	err := dashboardPage.Execute(c.Writer, gin.H{
		"Dashboard": repository.DemoDashboard(),
		"Version":   config.Version,
	})
	if err != nil {
		logger.Error("Home: failed to render dashboard page", err)
	}
}

func (h *AnalyticsHandler) TestDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, envelope("success", "Dashboard data retrieved successfully", repository.DemoDashboard()))
}

func (h *AnalyticsHandler) TestProducts(c *gin.Context) {
	products := service.DemoProductRows(repository.DemoProducts())
	resp := envelope("success", "Product performance data retrieved successfully", products)
	resp["total_products"] = len(products)
	c.JSON(http.StatusOK, resp)
}

func (h *AnalyticsHandler) TestCategories(c *gin.Context) {
	c.JSON(http.StatusOK, envelope("success", "Category analysis completed successfully",
		service.DemoCategories(repository.DemoProducts())))
}

func (h *AnalyticsHandler) TestHealth(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := envelope("healthy", "System is healthy", nil)
	delete(resp, "data")
	resp["version"] = config.Version
	resp["quality_ready"] = true
	resp["system_metrics"] = gin.H{
		"uptime_seconds":     int64(time.Since(h.started).Seconds()),
		"goroutines":         runtime.NumGoroutine(),
		"memory_alloc_bytes": mem.Alloc,
		"analytics_source":   h.analyticsService.SourceName(),
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AnalyticsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"version":     config.Version,
		"environment": h.environment,
	})
}

func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	start := time.Now()
	caller := callerFrom(c)

	data, err := h.analyticsService.Dashboard(c.Request.Context())
	if err != nil {
		logger.Error("Dashboard: service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard data"})
		return
	}
	logger.APIAccess(c.Request.Method, c.FullPath(), caller.Subject, caller.IP, time.Since(start))
	c.JSON(http.StatusOK, data)
}

func (h *AnalyticsHandler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	result, err := h.analyticsService.Query(c.Request.Context(), req, callerFrom(c))
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Query: service error", err, map[string]interface{}{"query_type": req.QueryType})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query execution failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalyticsHandler) RecentQueries(c *gin.Context) {
	limit, err := optionalInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	entries, err := h.analyticsService.RecentQueries(c.Request.Context(), limit)
	if err != nil {
		logger.Error("RecentQueries: service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve query history"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AnalyticsHandler) ProductPerformance(c *gin.Context) {
	perf, err := h.analyticsService.ProductPerformance(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error("ProductPerformance: service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve product performance"})
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (h *AnalyticsHandler) Recommendations(c *gin.Context) {
	k, err := optionalInt(c, "k")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "k must be a non-negative integer"})
		return
	}
	recs, err := h.analyticsService.Recommendations(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Recommendations: service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute recommendations"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *AnalyticsHandler) ImportSales(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A CSV file is required in the 'file' form field"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("ImportSales: failed to open upload", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
		return
	}
	defer file.Close()

	summary, err := h.analyticsService.ImportSales(c.Request.Context(), fileHeader.Filename, fileHeader.Size, file, callerFrom(c))
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, summary)
	case errors.Is(err, security.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, security.ErrFileTypeNotAllowed), errors.Is(err, service.ErrInvalidCSV):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoValidRows):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "summary": summary})
	case errors.Is(err, service.ErrImportDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		logger.Error("ImportSales: service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import sales data"})
	}
}

// optionalInt reads a non-negative integer query parameter; absent means 0.
func optionalInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
