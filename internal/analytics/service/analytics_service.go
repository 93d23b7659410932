package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/ai"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	topCategoryCount  = 3
	dashboardProducts = 3
	maxInsights       = 3

	DefaultQueryLimit = 10
	MaxQueryLimit     = 100
	DefaultMonths     = 6
	MaxMonths         = 24
	DefaultHorizon    = 3
	MaxHorizon        = 12

	DefaultRecommendations = 3
	MaxRecommendations     = 20
	recommendationPool     = 1000

	DefaultAuditLimit = 50
	MaxAuditLimit     = 500

	DefaultSnapshotTTL = 10 * time.Minute
)

var (
	ErrUnsupportedQuery = errors.New("Unsupported query type")
	ErrProductNotFound  = errors.New("Product not found")
	ErrNoValidRows      = errors.New("Upload contains no valid rows")
	ErrImportDisabled   = errors.New("Sales import is not available for this source")
)

type AnalyticsService interface {
	SourceName() string
	Dashboard(ctx context.Context) (*domain.DashboardData, error)
	RefreshSnapshot(ctx context.Context) error
	Query(ctx context.Context, req domain.QueryRequest, caller domain.Caller) (*domain.QueryResult, error)
	RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error)
	ProductPerformance(ctx context.Context, productID string) (*domain.ProductPerformance, error)
	Recommendations(ctx context.Context, productID string, k int) ([]domain.Recommendation, error)
	ImportSales(ctx context.Context, filename string, size int64, r io.Reader, caller domain.Caller) (*domain.ImportSummary, error)
}

type Option func(*analyticsServiceImpl)

// WithInsights sets the model used for dashboard insights. Without one the
// heuristic insights are used.
func WithInsights(g ai.TextGenerator) Option {
	return func(s *analyticsServiceImpl) { s.insights = g }
}

func WithEmbedder(e ai.Embedder) Option {
	return func(s *analyticsServiceImpl) {
		if e != nil {
			s.embedder = e
		}
	}
}

func WithSalesStore(store repository.SalesStore) Option {
	return func(s *analyticsServiceImpl) { s.store = store }
}

func WithMaxUploadSize(n int64) Option {
	return func(s *analyticsServiceImpl) { s.maxUploadSize = n }
}

func WithSnapshotTTL(d time.Duration) Option {
	return func(s *analyticsServiceImpl) {
		if d > 0 {
			s.snapshotTTL = d
		}
	}
}

type analyticsServiceImpl struct {
	source        repository.Source
	store         repository.SalesStore
	audit         repository.AuditLog
	insights      ai.TextGenerator
	embedder      ai.Embedder
	fallback      ai.Embedder
	metrics       *metrics.Registry
	maxUploadSize int64
	snapshotTTL   time.Duration
	now           func() time.Time

	mu         sync.RWMutex
	snapshot   *domain.DashboardData
	snapshotAt time.Time
}

func NewAnalyticsService(source repository.Source, audit repository.AuditLog, m *metrics.Registry, opts ...Option) AnalyticsService {
	s := &analyticsServiceImpl{
		source:      source,
		audit:       audit,
		metrics:     m,
		embedder:    ai.NewHashEmbedder(0),
		fallback:    ai.NewHashEmbedder(0),
		snapshotTTL: DefaultSnapshotTTL,
		now:         time.Now,
	}
	if store, ok := source.(repository.SalesStore); ok {
		s.store = store
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *analyticsServiceImpl) SourceName() string {
	return s.source.Name()
}

// Dashboard serves the cached snapshot while it is fresh and rebuilds it otherwise.
func (s *analyticsServiceImpl) Dashboard(ctx context.Context) (*domain.DashboardData, error) {
	s.metrics.AnalyticsQueries.WithLabelValues("dashboard").Inc()

	s.mu.RLock()
	snap, at := s.snapshot, s.snapshotAt
	s.mu.RUnlock()
	if snap != nil && s.now().Sub(at) < s.snapshotTTL {
		return snap.Clone(), nil
	}

	d, err := s.buildDashboard(ctx)
	if err != nil {
		return nil, err
	}
	s.setSnapshot(d)
	return d.Clone(), nil
}

func (s *analyticsServiceImpl) RefreshSnapshot(ctx context.Context) error {
	d, err := s.buildDashboard(ctx)
	if err != nil {
		return err
	}
	s.setSnapshot(d)
	logger.Info("Dashboard snapshot refreshed from %s source", s.source.Name())
	return nil
}

func (s *analyticsServiceImpl) setSnapshot(d *domain.DashboardData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = d
	s.snapshotAt = s.now()
}

func (s *analyticsServiceImpl) invalidateSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}

// buildDashboard runs the source queries concurrently; any failure fails the
// dashboard. Insight generation never does.
func (s *analyticsServiceImpl) buildDashboard(ctx context.Context) (*domain.DashboardData, error) {
	now := s.now()
	var (
		overview *domain.Overview
		cats     []domain.CategorySummary
		products []domain.ProductPerformance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.source.Overview(gctx, now)
		if err != nil {
			return fmt.Errorf("overview: %w", err)
		}
		overview = o
		return nil
	})
	g.Go(func() error {
		c, err := s.source.TopCategories(gctx, topCategoryCount, now)
		if err != nil {
			return fmt.Errorf("top categories: %w", err)
		}
		cats = c
		return nil
	})
	g.Go(func() error {
		p, err := s.source.ProductPerformance(gctx, dashboardProducts)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		products = p
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Dashboard: assembly failed", err)
		return nil, err
	}

	d := &domain.DashboardData{
		TotalProducts:  overview.TotalProducts,
		TotalRevenue:   overview.TotalRevenue,
		ActiveUsers:    overview.ActiveUsers,
		ConversionRate: overview.ConversionRate,
		TopCategories:  cats,
	}
	if d.TopCategories == nil {
		d.TopCategories = []domain.CategorySummary{}
	}
	d.RecentInsights = s.generateInsights(ctx, d, products)
	return d, nil
}

func (s *analyticsServiceImpl) generateInsights(ctx context.Context, d *domain.DashboardData, products []domain.ProductPerformance) []string {
	if s.insights != nil {
		text, err := s.insights.Generate(ctx, InsightPrompt(d, products))
		if err == nil {
			if lines := ai.Lines(text, maxInsights); len(lines) > 0 {
				return lines
			}
			err = ai.ErrEmptyResponse
		}
		logger.Warn("Insight generation failed, using heuristics: %v", err)
	}
	return HeuristicInsights(d, products)
}

func (s *analyticsServiceImpl) Query(ctx context.Context, req domain.QueryRequest, caller domain.Caller) (*domain.QueryResult, error) {
	queryType := strings.TrimSpace(security.SanitizeInput(req.QueryType))
	params := req.Parameters
	start := time.Now()

	var (
		results interface{}
		count   int
	)
	switch queryType {
	case domain.QueryProductPerformance:
		rows, err := s.source.ProductPerformance(ctx, IntParam(params, "limit", DefaultQueryLimit, MaxQueryLimit))
		if err != nil {
			return nil, err
		}
		results, count = nonNil(rows), len(rows)
	case domain.QueryCategoryAnalysis:
		rows, err := s.source.CategoryAnalysis(ctx, IntParam(params, "limit", DefaultQueryLimit, MaxQueryLimit))
		if err != nil {
			return nil, err
		}
		results, count = nonNil(rows), len(rows)
	case domain.QueryTrendPrediction:
		forecast, err := s.trend(ctx,
			IntParam(params, "months", DefaultMonths, MaxMonths),
			IntParam(params, "horizon", DefaultHorizon, MaxHorizon))
		if err != nil {
			return nil, err
		}
		results, count = forecast, len(forecast.History)+len(forecast.Projection)
	case domain.QueryCustomerInsights:
		stats, err := s.source.CustomerStats(ctx)
		if err != nil {
			return nil, err
		}
		segments := Segments(stats, s.now())
		results, count = segments, len(segments)
	default:
		return nil, ErrUnsupportedQuery
	}

	elapsed := time.Since(start).Seconds()
	s.metrics.AnalyticsQueries.WithLabelValues(queryType).Inc()

	encoded, err := json.Marshal(params)
	if err != nil || params == nil {
		encoded = []byte("{}")
	}
	entry := &domain.AuditEntry{
		UserID:        caller.Subject,
		QueryType:     queryType,
		QueryParams:   string(encoded),
		ResultsCount:  count,
		ExecutionTime: elapsed,
		IPAddress:     caller.IP,
		UserAgent:     caller.UserAgent,
		CreatedAt:     s.now(),
	}
	if err := s.audit.RecordQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record query audit: %w", err)
	}

	return &domain.QueryResult{QueryType: queryType, Results: results, ExecutionTime: elapsed}, nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

// IntParam reads a positive integer parameter. Missing, malformed or
// non-positive values give def; values above max are capped.
func IntParam(params map[string]interface{}, key string, def, max int) int {
	n := def
	switch v := params[key].(type) {
	case float64:
		n = int(v)
	case int:
		n = v
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			n = parsed
		}
	}
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}

func (s *analyticsServiceImpl) RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	entries, err := s.audit.RecentQueries(ctx, limit)
	if err != nil {
		return nil, err
	}
	return nonNil(entries), nil
}

func (s *analyticsServiceImpl) ProductPerformance(ctx context.Context, productID string) (*domain.ProductPerformance, error) {
	p, err := s.source.ProductByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// Recommendations ranks the other products by embedding similarity to
// productID. Equal similarity is broken by revenue.
func (s *analyticsServiceImpl) Recommendations(ctx context.Context, productID string, k int) ([]domain.Recommendation, error) {
	if k <= 0 {
		k = DefaultRecommendations
	}
	if k > MaxRecommendations {
		k = MaxRecommendations
	}

	source, err := s.ProductPerformance(ctx, productID)
	if err != nil {
		return nil, err
	}
	products, err := s.source.ProductPerformance(ctx, recommendationPool)
	if err != nil {
		return nil, err
	}
	// The pool holds the top sellers only; the source product may rank below it.
	target := -1
	for i, p := range products {
		if p.ID == source.ID {
			target = i
			break
		}
	}
	if target < 0 {
		products = append(products, *source)
		target = len(products) - 1
	}
	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = p.Name + " " + p.Category
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		logger.Warn("Embedder %s unavailable, using %s: %v", s.embedder.Name(), s.fallback.Name(), err)
		if vectors, err = s.fallback.Embed(ctx, texts); err != nil {
			return nil, err
		}
	}

	recs := make([]domain.Recommendation, 0, len(products)-1)
	for i, p := range products {
		if i == target {
			continue
		}
		recs = append(recs, domain.Recommendation{
			ProductID:  p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Revenue:    p.Revenue,
			Similarity: repository.Round(ai.Cosine(vectors[target], vectors[i]), 4),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Similarity != recs[j].Similarity {
			return recs[i].Similarity > recs[j].Similarity
		}
		return recs[i].Revenue > recs[j].Revenue
	})
	if len(recs) > k {
		recs = recs[:k]
	}
	return recs, nil
}

// ImportSales validates an uploaded CSV file and stores its valid rows. Bad
// rows are reported and skipped; a file without any valid row stores nothing.
func (s *analyticsServiceImpl) ImportSales(ctx context.Context, filename string, size int64, r io.Reader, caller domain.Caller) (*domain.ImportSummary, error) {
	if s.store == nil {
		return nil, ErrImportDisabled
	}
	if err := security.ValidateUpload(filename, size, []string{".csv"}, s.maxUploadSize); err != nil {
		logger.SecurityEvent("upload_rejected", "low", map[string]interface{}{"filename": filename, "size": size, "reason": err.Error()}, caller.IP)
		return nil, err
	}

	stored := security.SecureFilename(filename)
	records, rowErrors, rejected, err := ParseSalesCSV(r, stored)
	if err != nil {
		return nil, err
	}

	summary := &domain.ImportSummary{File: stored, Rejected: rejected, Errors: rowErrors}
	if len(records) == 0 {
		return summary, ErrNoValidRows
	}

	n, err := s.store.InsertSales(ctx, records)
	if err != nil {
		return nil, err
	}
	summary.Imported = n
	s.invalidateSnapshot()

	logger.Info("Imported %d sales rows from %s (%d rejected) for %s", n, stored, rejected, caller.Subject)
	return summary, nil
}

// StartSnapshotRefresh rebuilds the dashboard snapshot once now and then on
// spec. The caller stops the returned scheduler on shutdown.
func StartSnapshotRefresh(svc AnalyticsService, spec string) (*cron.Cron, error) {
	refresh := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := svc.RefreshSnapshot(ctx); err != nil {
			logger.Error("Scheduler: dashboard snapshot refresh failed", err)
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, refresh); err != nil {
		return nil, fmt.Errorf("invalid dashboard refresh spec %q: %w", spec, err)
	}
	refresh()
	scheduler.Start()
	logger.Info("Dashboard snapshot scheduler initialized with spec '%s'", spec)
	return scheduler, nil
}
