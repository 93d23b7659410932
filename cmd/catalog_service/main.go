package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/config"
	"github.com/ridloal/retail-analytics-engine/internal/platform/database"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/middleware"
	"github.com/ridloal/retail-analytics-engine/internal/platform/server"
	productAPI "github.com/ridloal/retail-analytics-engine/internal/product/api"
	productRepo "github.com/ridloal/retail-analytics-engine/internal/product/repository"
	productService "github.com/ridloal/retail-analytics-engine/internal/product/service"
)

const serviceSubject = "catalog-service"

func main() {
	defer logger.Sync()

	// Load Config
	dbCfg := config.LoadCatalogDBConfig()
	serverCfg := config.LoadServerConfig("8082")
	secCfg := config.LoadSecurityConfig()
	analyticsServiceURL := config.GetEnv("ANALYTICS_SERVICE_URL", "http://localhost:8083")

	logger.Info("Starting Catalog Service...")

	// Setup Database
	db, err := database.Connect(dbCfg.DSN)
	if err != nil {
		logger.Error("Failed to connect to database for Catalog Service", err)
		return
	}
	defer db.Close()

	if err := database.EnsureSchema(context.Background(), db, productRepo.Schema); err != nil {
		logger.Error("Failed to apply products schema", err)
		return
	}

	// Setup Dependencies
	m := metrics.NewRegistry()
	tokens := auth.NewTokenManager(secCfg.JWTSecret, secCfg.AccessTokenTTL, secCfg.RefreshTokenTTL)
	analyticsClient := productService.NewHTTPAnalyticsClient(analyticsServiceURL, func() (string, error) {
		return tokens.IssueAccess(serviceSubject, "analyst")
	})
	prodRepository := productRepo.NewPostgresProductRepository(db)
	prodService := productService.NewProductService(prodRepository, analyticsClient, m)
	productHandler := productAPI.NewProductHandler(prodService, tokens)

	// Setup Gin Router
	if secCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), middleware.GinMetrics(m))
	if err := middleware.Harden(router, secCfg.TrustedProxies, secCfg.AllowedHosts, secCfg.CORSOrigins); err != nil {
		logger.Error("Failed to configure router security", err)
		return
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "catalog"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apiV1 := router.Group("/api/v1")
	productHandler.RegisterRoutes(apiV1)

	logger.Info("Catalog Service connecting to Analytics Service at " + analyticsServiceURL)
	if err := server.Run("Catalog Service", serverCfg.Port, router); err != nil {
		logger.Error("Failed to run Catalog Service server", err)
	}
}
