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
	userAPI "github.com/ridloal/retail-analytics-engine/internal/user/api"
	userRepo "github.com/ridloal/retail-analytics-engine/internal/user/repository"
	userService "github.com/ridloal/retail-analytics-engine/internal/user/service"
)

func main() {
	defer logger.Sync()

	// Load Config
	dbCfg := config.LoadAuthDBConfig()
	serverCfg := config.LoadServerConfig("8081") // Auth service default port 8081
	secCfg := config.LoadSecurityConfig()
	sweepSpec := config.GetEnv("LOCKOUT_SWEEP_SPEC", "@every 1m")

	logger.Info("Starting Auth Service...")

	// Setup Database
	db, err := database.Connect(dbCfg.DSN)
	if err != nil {
		logger.Error("Failed to connect to database", err)
		return
	}
	defer db.Close()

	if err := database.EnsureSchema(context.Background(), db, userRepo.Schema); err != nil {
		logger.Error("Failed to apply users schema", err)
		return
	}

	// Setup Dependencies
	m := metrics.NewRegistry()
	tokens := auth.NewTokenManager(secCfg.JWTSecret, secCfg.AccessTokenTTL, secCfg.RefreshTokenTTL)
	userRepository := userRepo.NewPostgresUserRepository(db)
	usrService := userService.NewUserService(userRepository, tokens, m)
	userHandler := userAPI.NewUserHandler(usrService, tokens)

	scheduler, err := userService.StartLockoutSweep(usrService, sweepSpec)
	if err != nil {
		logger.Error("Failed to start lockout sweep", err)
		return
	}
	defer func() { <-scheduler.Stop().Done() }()

	// Setup Gin Router
	if secCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.GinMetrics(m))
	if err := middleware.Harden(router, secCfg.TrustedProxies, secCfg.AllowedHosts, secCfg.CORSOrigins); err != nil {
		logger.Error("Failed to configure router security", err)
		return
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "auth"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apiV1 := router.Group("/api/v1")
	userHandler.RegisterRoutes(apiV1)

	if err := server.Run("Auth Service", serverCfg.Port, router); err != nil {
		logger.Error("Failed to run server", err)
	}
}
