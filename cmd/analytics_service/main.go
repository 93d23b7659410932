package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridloal/retail-analytics-engine/internal/ai"
	analyticsAPI "github.com/ridloal/retail-analytics-engine/internal/analytics/api"
	analyticsRepo "github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	analyticsService "github.com/ridloal/retail-analytics-engine/internal/analytics/service"
	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/config"
	"github.com/ridloal/retail-analytics-engine/internal/platform/database"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/middleware"
	"github.com/ridloal/retail-analytics-engine/internal/platform/server"
)

// backend bundles the analytics source with the audit log that records
// queries against it.
type backend struct {
	source  analyticsRepo.Source
	audit   analyticsRepo.AuditLog
	closers []io.Closer
}

func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			logger.Warn("Analytics Service: close failed: %v", err)
		}
	}
}

// openBackend selects the source named by cfg.Source. The static source still
// audits into the SQL database.
func openBackend(ctx context.Context, cfg config.AnalyticsConfig, dsn string) (*backend, error) {
	b := &backend{}
	openSQL := func() (*sql.DB, error) {
		db, err := database.Connect(dsn)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db)
		if err := database.EnsureSchema(ctx, db, analyticsRepo.Schema); err != nil {
			return nil, fmt.Errorf("failed to apply analytics schema: %w", err)
		}
		return db, nil
	}

	switch cfg.Source {
	case "bigquery":
		bq, err := analyticsRepo.NewBigQuerySource(ctx, cfg.GCPProjectID, cfg.BigQueryDataset)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, bq)
		b.source, b.audit = bq, bq
	case "sql", "static":
		db, err := openSQL()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.audit = analyticsRepo.NewSQLAuditLog(db)
		if cfg.Source == "static" {
			b.source = analyticsRepo.NewStaticSource()
		} else {
			b.source = analyticsRepo.NewSQLSource(db)
		}
	default:
		return nil, fmt.Errorf("unknown ANALYTICS_SOURCE %q (want static, sql or bigquery)", cfg.Source)
	}
	return b, nil
}

// aiOptions wires the GenAI insight generator and embedder when an API key is
// configured. Failures leave the offline fallbacks in place.
func aiOptions(ctx context.Context, cfg config.AnalyticsConfig) []analyticsService.Option {
	if cfg.GeminiAPIKey == "" {
		logger.Info("GEMINI_API_KEY not set, using heuristic insights and hashed embeddings")
		return nil
	}
	var opts []analyticsService.Option
	if gen, err := ai.NewGenAIGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); err != nil {
		logger.Error("Failed to create GenAI insight generator", err)
	} else {
		opts = append(opts, analyticsService.WithInsights(gen))
	}
	if emb, err := ai.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel); err != nil {
		logger.Error("Failed to create GenAI embedder", err)
	} else {
		opts = append(opts, analyticsService.WithEmbedder(emb))
	}
	return opts
}

func main() {
	defer logger.Sync()
	ctx := context.Background()

	// Load Config
	analyticsCfg := config.LoadAnalyticsConfig()
	dbCfg := config.LoadAnalyticsDBConfig()
	serverCfg := config.LoadServerConfig("8083")
	secCfg := config.LoadSecurityConfig()

	logger.Info("Starting Analytics Service with %s source...", analyticsCfg.Source)

	b, err := openBackend(ctx, analyticsCfg, dbCfg.DSN)
	if err != nil {
		logger.Error("Failed to open analytics backend", err)
		return
	}
	defer b.Close()

	// Setup Dependencies
	m := metrics.NewRegistry()
	tokens := auth.NewTokenManager(secCfg.JWTSecret, secCfg.AccessTokenTTL, secCfg.RefreshTokenTTL)
	opts := append(aiOptions(ctx, analyticsCfg), analyticsService.WithMaxUploadSize(secCfg.MaxUploadSize))
	svc := analyticsService.NewAnalyticsService(b.source, b.audit, m, opts...)
	handler := analyticsAPI.NewAnalyticsHandler(svc, tokens, secCfg.AppEnv)

	scheduler, err := analyticsService.StartSnapshotRefresh(svc, analyticsCfg.DashboardRefreshSpec)
	if err != nil {
		logger.Error("Failed to start dashboard snapshot refresh", err)
		return
	}
	defer func() { <-scheduler.Stop().Done() }()

	// Setup Gin Router
	if secCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = secCfg.MaxUploadSize
	router.Use(gin.Recovery(), middleware.GinMetrics(m))
	if err := middleware.Harden(router, secCfg.TrustedProxies, secCfg.AllowedHosts, secCfg.CORSOrigins); err != nil {
		logger.Error("Failed to configure router security", err)
		return
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "analytics", "source": svc.SourceName()})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handler.RegisterPublicRoutes(router)
	apiV1 := router.Group("/api/v1")
	handler.RegisterRoutes(apiV1)

	if err := server.Run("Analytics Service", serverCfg.Port, router); err != nil {
		logger.Error("Failed to run Analytics Service server", err)
	}
}
