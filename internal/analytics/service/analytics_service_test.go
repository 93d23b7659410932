package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository/mocks"
	serviceMocks "github.com/ridloal/retail-analytics-engine/internal/analytics/service/mocks"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.text, g.err
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func (failingEmbedder) Name() string { return "failing" }

func newTestService(source repository.Source, audit repository.AuditLog, opts ...Option) (*analyticsServiceImpl, *metrics.Registry) {
	m := metrics.NewRegistry()
	svc := NewAnalyticsService(source, audit, m, opts...).(*analyticsServiceImpl)
	svc.now = func() time.Time { return fixedNow }
	return svc, m
}

func expectDashboardQueries(src *mocks.MockSource) {
	src.On("Overview", mock.Anything, fixedNow).
		Return(&domain.Overview{TotalProducts: 4, TotalRevenue: 6110, ActiveUsers: 1, ConversionRate: 33.3}, nil).Once()
	src.On("TopCategories", mock.Anything, 3, fixedNow).
		Return([]domain.CategorySummary{{Name: "Electronics", Revenue: 5500, Growth: 350}}, nil).Once()
	src.On("ProductPerformance", mock.Anything, 3).
		Return([]domain.ProductPerformance{{ID: "P1", Name: "iPhone 15", Category: "Electronics", Revenue: 3000, UnitsSold: 3}}, nil).Once()
}

func TestDashboard(t *testing.T) {
	t.Run("Assembles, caches and expires the snapshot", func(t *testing.T) {
		src := new(mocks.MockSource)
		expectDashboardQueries(src)
		gen := &fakeGenerator{text: "1. Electronics is booming\n2. iPhone 15 leads\n- Customers are returning\n4. Extra"}
		svc, m := newTestService(src, new(mocks.MockAuditLog), WithInsights(gen))

		d, err := svc.Dashboard(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, d.TotalProducts)
		assert.Equal(t, 6110.0, d.TotalRevenue)
		assert.Equal(t, 1, d.ActiveUsers)
		assert.Equal(t, 33.3, d.ConversionRate)
		assert.Equal(t, []domain.CategorySummary{{Name: "Electronics", Revenue: 5500, Growth: 350}}, d.TopCategories)
		assert.Equal(t, []string{"Electronics is booming", "iPhone 15 leads", "Customers are returning"}, d.RecentInsights)
		assert.Contains(t, gen.prompt, "Electronics: revenue $5,500.00, 30-day growth 350.0%")
		assert.Contains(t, gen.prompt, "iPhone 15 (Electronics): revenue $3,000.00, 3 units")

		d.RecentInsights[0] = "mutated"
		cached, err := svc.Dashboard(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Electronics is booming", cached.RecentInsights[0])
		src.AssertNumberOfCalls(t, "Overview", 1)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalyticsQueries.WithLabelValues("dashboard")))

		svc.now = func() time.Time { return fixedNow.Add(DefaultSnapshotTTL) }
		src.ExpectedCalls = nil
		src.On("Overview", mock.Anything, mock.Anything).Return(&domain.Overview{TotalProducts: 5}, nil).Once()
		src.On("TopCategories", mock.Anything, 3, mock.Anything).Return(nil, nil).Once()
		src.On("ProductPerformance", mock.Anything, 3).Return(nil, nil).Once()

		rebuilt, err := svc.Dashboard(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, rebuilt.TotalProducts)
		assert.NotNil(t, rebuilt.TopCategories)
		src.AssertExpectations(t)
	})

	t.Run("Any failed source query fails the dashboard", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("Overview", mock.Anything, fixedNow).Return(&domain.Overview{}, nil).Maybe()
		src.On("TopCategories", mock.Anything, 3, fixedNow).Return(nil, errors.New("db down"))
		src.On("ProductPerformance", mock.Anything, 3).Return(nil, nil).Maybe()
		svc, _ := newTestService(src, new(mocks.MockAuditLog))

		_, err := svc.Dashboard(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "top categories")
		assert.Nil(t, svc.snapshot)
	})

	t.Run("Insight failure falls back to heuristics", func(t *testing.T) {
		src := new(mocks.MockSource)
		expectDashboardQueries(src)
		svc, _ := newTestService(src, new(mocks.MockAuditLog), WithInsights(&fakeGenerator{err: errors.New("no quota")}))

		d, err := svc.Dashboard(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Electronics category showing 350% growth",
			"iPhone 15 leads product revenue with $3,000.00 from 3 units",
			"Conversion rate at 33.3% across 1 active customers",
		}, d.RecentInsights)
	})

	t.Run("Refresh replaces the snapshot", func(t *testing.T) {
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog))
		require.NoError(t, svc.RefreshSnapshot(context.Background()))
		require.NotNil(t, svc.snapshot)
		assert.Equal(t, 1250, svc.snapshot.TotalProducts)
		assert.Equal(t, "static", svc.SourceName())
	})
}

func TestHeuristicInsights(t *testing.T) {
	demo := repository.DemoDashboard()
	products := []domain.ProductPerformance{{Name: "MacBook Pro", Revenue: 45000, UnitsSold: 75}}
	assert.Equal(t, []string{
		"Home & Garden category showing 15.2% growth",
		"MacBook Pro leads product revenue with $45,000.00 from 75 units",
		"Conversion rate at 3.2% across 890 active customers",
	}, HeuristicInsights(demo, products))

	declining := &domain.DashboardData{TotalRevenue: 10, TopCategories: []domain.CategorySummary{{Name: "Toys", Revenue: 10, Growth: -20}}}
	assert.Equal(t, []string{"Toys category revenue down 20% over the last 30 days"}, HeuristicInsights(declining, nil))

	flat := &domain.DashboardData{TotalRevenue: 10, TopCategories: []domain.CategorySummary{{Name: "Toys", Revenue: 10}}}
	assert.Equal(t, []string{"Toys leads category revenue with $10.00"}, HeuristicInsights(flat, nil))

	empty := HeuristicInsights(&domain.DashboardData{}, nil)
	require.Len(t, empty, 1)
	assert.True(t, strings.HasPrefix(empty[0], "No sales recorded yet"))
}

func TestMoneyAndPercent(t *testing.T) {
	assert.Equal(t, "$1,234,567.89", Money(1234567.891))
	assert.Equal(t, "$0.00", Money(0))
	assert.Equal(t, "$999.00", Money(999))
	assert.Equal(t, "-$45.50", Money(-45.5))
	assert.Equal(t, "12.5", Percent(12.5))
	assert.Equal(t, "350", Percent(350))
	assert.Equal(t, "33.3", Percent(33.333))
}

func TestQuery(t *testing.T) {
	caller := domain.Caller{Subject: "analyst@example.com", IP: "10.0.0.7", UserAgent: "curl/8.0"}

	t.Run("Product performance is limited and audited", func(t *testing.T) {
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.MatchedBy(func(e *domain.AuditEntry) bool {
			return e.UserID == caller.Subject && e.QueryType == domain.QueryProductPerformance &&
				e.QueryParams == `{"limit":"2"}` && e.ResultsCount == 2 &&
				e.IPAddress == "10.0.0.7" && e.UserAgent == "curl/8.0" && fixedNow.Equal(e.CreatedAt)
		})).Return(nil).Once()
		svc, m := newTestService(repository.NewStaticSource(), audit)

		res, err := svc.Query(context.Background(), domain.QueryRequest{
			QueryType:  "product_performance",
			Parameters: map[string]interface{}{"limit": "2"},
		}, caller)
		require.NoError(t, err)
		assert.Equal(t, domain.QueryProductPerformance, res.QueryType)
		rows := res.Results.([]domain.ProductPerformance)
		require.Len(t, rows, 2)
		assert.Equal(t, "MacBook Pro", rows[0].Name)
		assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalyticsQueries.WithLabelValues(domain.QueryProductPerformance)))
		audit.AssertExpectations(t)
	})

	t.Run("Category analysis with padded type and no parameters", func(t *testing.T) {
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.MatchedBy(func(e *domain.AuditEntry) bool {
			return e.QueryParams == "{}" && e.ResultsCount == 3
		})).Return(nil).Once()
		svc, _ := newTestService(repository.NewStaticSource(), audit)

		res, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: "  category_analysis "}, caller)
		require.NoError(t, err)
		assert.Equal(t, domain.QueryCategoryAnalysis, res.QueryType)
		assert.Len(t, res.Results.([]domain.CategoryAnalysis), 3)
	})

	t.Run("Unsupported types are rejected without audit", func(t *testing.T) {
		audit := new(mocks.MockAuditLog)
		svc, _ := newTestService(repository.NewStaticSource(), audit)

		for _, qt := range []string{"sales_forecast", "<product_performance>x", ""} {
			_, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: qt}, caller)
			assert.ErrorIs(t, err, ErrUnsupportedQuery, qt)
		}
		audit.AssertNotCalled(t, "RecordQuery", mock.Anything, mock.Anything)
	})

	t.Run("Audit failure fails the query", func(t *testing.T) {
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		svc, _ := newTestService(repository.NewStaticSource(), audit)

		_, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: domain.QueryCategoryAnalysis}, caller)
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("Source failure is returned", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("CustomerStats", mock.Anything).Return(nil, errors.New("timeout"))
		svc, _ := newTestService(src, new(mocks.MockAuditLog))

		_, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: domain.QueryCustomerInsights}, caller)
		assert.ErrorContains(t, err, "timeout")
	})

	t.Run("Trend prediction", func(t *testing.T) {
		src := new(mocks.MockSource)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		var rows []domain.MonthlyRevenue
		for i := 0; i < 6; i++ {
			rows = append(rows, domain.MonthlyRevenue{Month: start.AddDate(0, i, 0), Revenue: float64(100 * (i + 1))})
		}
		src.On("MonthlyRevenue", mock.Anything, start).Return(rows, nil)
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.MatchedBy(func(e *domain.AuditEntry) bool { return e.ResultsCount == 9 })).Return(nil)
		svc, _ := newTestService(src, audit)

		res, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: domain.QueryTrendPrediction}, caller)
		require.NoError(t, err)
		f := res.Results.(*domain.TrendForecast)
		require.Len(t, f.History, 6)
		assert.Equal(t, domain.TrendPoint{Period: "2024-01", Revenue: 100}, f.History[0])
		assert.Equal(t, domain.TrendPoint{Period: "2024-06", Revenue: 600}, f.History[5])
		assert.Equal(t, []domain.TrendPoint{
			{Period: "2024-07", Revenue: 700, Projected: true},
			{Period: "2024-08", Revenue: 800, Projected: true},
			{Period: "2024-09", Revenue: 900, Projected: true},
		}, f.Projection)
		assert.Equal(t, 100.0, f.Slope)
		assert.Equal(t, 100.0, f.Intercept)
		assert.Equal(t, "growing", f.GrowthTrend)
	})

	t.Run("Trend fills missing months and clamps at zero", func(t *testing.T) {
		src := new(mocks.MockSource)
		start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		src.On("MonthlyRevenue", mock.Anything, start).Return([]domain.MonthlyRevenue{
			{Month: start, Revenue: 900},
			{Month: start.AddDate(0, 2, 0), Revenue: 100},
		}, nil)
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.Anything).Return(nil)
		svc, _ := newTestService(src, audit)

		res, err := svc.Query(context.Background(), domain.QueryRequest{
			QueryType:  domain.QueryTrendPrediction,
			Parameters: map[string]interface{}{"months": float64(3), "horizon": float64(2)},
		}, caller)
		require.NoError(t, err)
		f := res.Results.(*domain.TrendForecast)
		assert.Equal(t, []domain.TrendPoint{
			{Period: "2024-04", Revenue: 900},
			{Period: "2024-05", Revenue: 0},
			{Period: "2024-06", Revenue: 100},
		}, f.History)
		require.Len(t, f.Projection, 2)
		assert.Equal(t, 0.0, f.Projection[1].Revenue)
		assert.Equal(t, "declining", f.GrowthTrend)
	})

	t.Run("Customer insights", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("CustomerStats", mock.Anything).Return([]domain.CustomerStats{
			{CustomerID: "A", Orders: 6, TotalSpent: 600, LastPurchase: fixedNow.AddDate(0, 0, -10)},
		}, nil)
		audit := new(mocks.MockAuditLog)
		audit.On("RecordQuery", mock.Anything, mock.Anything).Return(nil)
		svc, _ := newTestService(src, audit)

		res, err := svc.Query(context.Background(), domain.QueryRequest{QueryType: domain.QueryCustomerInsights}, caller)
		require.NoError(t, err)
		segments := res.Results.([]domain.CustomerSegment)
		require.Len(t, segments, 4)
		assert.Equal(t, domain.CustomerSegment{Segment: domain.SegmentLoyalChampion, Customers: 1, TotalRevenue: 600, AvgOrderValue: 100}, segments[0])
	})
}

func TestIntParam(t *testing.T) {
	params := map[string]interface{}{
		"json":     float64(25),
		"int":      7,
		"string":   " 12 ",
		"bad":      "ten",
		"negative": float64(-3),
		"huge":     float64(5000),
		"bool":     true,
	}
	assert.Equal(t, 25, IntParam(params, "json", 10, 100))
	assert.Equal(t, 7, IntParam(params, "int", 10, 100))
	assert.Equal(t, 12, IntParam(params, "string", 10, 100))
	assert.Equal(t, 10, IntParam(params, "bad", 10, 100))
	assert.Equal(t, 10, IntParam(params, "negative", 10, 100))
	assert.Equal(t, 100, IntParam(params, "huge", 10, 100))
	assert.Equal(t, 10, IntParam(params, "bool", 10, 100))
	assert.Equal(t, 10, IntParam(params, "missing", 10, 100))
	assert.Equal(t, 6, IntParam(nil, "months", 6, 24))
}

func TestLeastSquares(t *testing.T) {
	slope, intercept := LeastSquares(nil)
	assert.Zero(t, slope)
	assert.Zero(t, intercept)

	slope, intercept = LeastSquares([]float64{5})
	assert.Zero(t, slope)
	assert.Equal(t, 5.0, intercept)

	slope, intercept = LeastSquares([]float64{1, 3, 5})
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	slope, _ = LeastSquares([]float64{4, 4, 4, 4})
	assert.InDelta(t, 0.0, slope, 1e-9)
	assert.Equal(t, "flat", trendDirection(slope, []float64{4, 4, 4, 4}))
	assert.Equal(t, "flat", trendDirection(0, nil))
}

func TestSegments(t *testing.T) {
	days := func(n int) time.Time { return fixedNow.AddDate(0, 0, -n) }
	stats := []domain.CustomerStats{
		{CustomerID: "A", Orders: 6, TotalSpent: 600, LastPurchase: days(10)},
		{CustomerID: "B", Orders: 3, TotalSpent: 300, LastPurchase: days(45)},
		{CustomerID: "C", Orders: 1, TotalSpent: 50, LastPurchase: days(20)},
		{CustomerID: "D", Orders: 8, TotalSpent: 800, LastPurchase: days(100)},
		{CustomerID: "E", Orders: 5, TotalSpent: 500, LastPurchase: days(40)},
	}
	assert.Equal(t, []domain.CustomerSegment{
		{Segment: domain.SegmentLoyalChampion, Customers: 1, TotalRevenue: 600, AvgOrderValue: 100},
		{Segment: domain.SegmentSatisfiedCustomer, Customers: 2, TotalRevenue: 800, AvgOrderValue: 100},
		{Segment: domain.SegmentNeutralCustomer, Customers: 1, TotalRevenue: 50, AvgOrderValue: 50},
		{Segment: domain.SegmentAtRiskCustomer, Customers: 1, TotalRevenue: 800, AvgOrderValue: 100},
	}, Segments(stats, fixedNow))

	empty := Segments(nil, fixedNow)
	require.Len(t, empty, 4)
	assert.Zero(t, empty[0].Customers)
	assert.Zero(t, empty[0].AvgOrderValue)
}

func TestRecentQueriesAndProductPerformance(t *testing.T) {
	audit := new(mocks.MockAuditLog)
	audit.On("RecentQueries", mock.Anything, DefaultAuditLimit).Return(nil, nil).Once()
	audit.On("RecentQueries", mock.Anything, MaxAuditLimit).Return([]domain.AuditEntry{{ID: "q-1"}}, nil).Once()
	svc, _ := newTestService(repository.NewStaticSource(), audit)
	ctx := context.Background()

	entries, err := svc.RecentQueries(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	entries, err = svc.RecentQueries(ctx, 10000)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	audit.AssertExpectations(t)

	p, err := svc.ProductPerformance(ctx, " 2 ")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, p.Revenue)

	_, err = svc.ProductPerformance(ctx, "404")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("Similar products first, source excluded", func(t *testing.T) {
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog))

		recs, err := svc.Recommendations(ctx, "1", 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "MacBook Pro", recs[0].Name)
		for _, r := range recs {
			assert.NotEqual(t, "1", r.ProductID)
		}

		top, err := svc.Recommendations(ctx, "1", 1)
		require.NoError(t, err)
		assert.Len(t, top, 1)

		_, err = svc.Recommendations(ctx, "missing", 3)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Ties broken by revenue and k capped", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("ProductByID", mock.Anything, "A").Return(&domain.ProductPerformance{ID: "A", Name: "Widget", Category: "Tools", Revenue: 1}, nil)
		src.On("ProductPerformance", mock.Anything, recommendationPool).Return([]domain.ProductPerformance{
			{ID: "A", Name: "Widget", Category: "Tools", Revenue: 1},
			{ID: "X", Name: "Gadget", Category: "Toys", Revenue: 10},
			{ID: "Y", Name: "Gadget", Category: "Toys", Revenue: 50},
		}, nil)
		svc, _ := newTestService(src, new(mocks.MockAuditLog))

		recs, err := svc.Recommendations(ctx, "A", 500)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Y", recs[0].ProductID)
		assert.Equal(t, "X", recs[1].ProductID)
		assert.Equal(t, recs[0].Similarity, recs[1].Similarity)
	})

	t.Run("Source product outside the candidate pool", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("ProductByID", mock.Anything, "tail").Return(&domain.ProductPerformance{ID: "tail", Name: "Gadget", Category: "Toys", Revenue: 0.5}, nil)
		src.On("ProductPerformance", mock.Anything, recommendationPool).Return([]domain.ProductPerformance{
			{ID: "X", Name: "Gadget", Category: "Toys", Revenue: 10},
			{ID: "Y", Name: "Widget", Category: "Tools", Revenue: 50},
		}, nil)
		svc, _ := newTestService(src, new(mocks.MockAuditLog))

		recs, err := svc.Recommendations(ctx, "tail", 3)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "X", recs[0].ProductID)
		assert.Equal(t, 1.0, recs[0].Similarity)
		for _, r := range recs {
			assert.NotEqual(t, "tail", r.ProductID)
		}
		src.AssertExpectations(t)
	})

	t.Run("Unknown product skips the pool query", func(t *testing.T) {
		src := new(mocks.MockSource)
		src.On("ProductByID", mock.Anything, "ghost").Return(nil, repository.ErrProductNotFound)
		svc, _ := newTestService(src, new(mocks.MockAuditLog))

		_, err := svc.Recommendations(ctx, "ghost", 3)
		assert.ErrorIs(t, err, ErrProductNotFound)
		src.AssertNotCalled(t, "ProductPerformance", mock.Anything, recommendationPool)
	})

	t.Run("Embedder failure falls back to hashing", func(t *testing.T) {
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog), WithEmbedder(failingEmbedder{}))

		recs, err := svc.Recommendations(ctx, "1", 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "MacBook Pro", recs[0].Name)
	})
}

const salesCSV = `product_id,product_name,category,customer_id,quantity,unit_price,sold_at
P1,iPhone 15,Electronics,C1,2,999.99,2024-06-01T10:00:00Z
P2,MacBook Pro,Electronics,C2,0,2499.99,2024-06-02
P3,<b>Nike</b>,Clothing,C3,1,129.99,2024-06-03
P4,Garden Tools Set,Home & Garden,C4,1,abc,2024-06-04
P5,Tools,Home,C5,1,10,06/04/2024
,Empty,Home,C6,1,10,2024-06-04
P7,Short,Home
`

func TestParseSalesCSV(t *testing.T) {
	records, rowErrors, rejected, err := ParseSalesCSV(strings.NewReader(salesCSV), "stored.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.SaleRecord{
		ProductID: "P1", ProductName: "iPhone 15", Category: "Electronics", CustomerID: "C1",
		Quantity: 2, UnitPrice: 999.99, SoldAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), SourceFile: "stored.csv",
	}, records[0])
	assert.Equal(t, "bNike/b", records[1].ProductName)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), records[1].SoldAt)

	assert.Equal(t, 5, rejected)
	assert.Equal(t, []domain.RowError{
		{Line: 3, Reason: "quantity must be a positive integer"},
		{Line: 5, Reason: "unit_price must be a non-negative number"},
		{Line: 6, Reason: "sold_at must be RFC3339 or YYYY-MM-DD"},
		{Line: 7, Reason: "product_id is required"},
		{Line: 8, Reason: "expected 7 fields, got 3"},
	}, rowErrors)

	t.Run("Header is case and BOM tolerant", func(t *testing.T) {
		in := "\ufeffProduct_ID,product_name,CATEGORY,customer_id,quantity,unit_price,sold_at\nP1,A,B,C,1,1,2024-01-01\n"
		records, _, _, err := ParseSalesCSV(strings.NewReader(in), "f.csv")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Structural errors fail the file", func(t *testing.T) {
		_, _, _, err := ParseSalesCSV(strings.NewReader(""), "f.csv")
		assert.ErrorIs(t, err, ErrInvalidCSV)

		_, _, _, err = ParseSalesCSV(strings.NewReader("id,name\n1,a\n"), "f.csv")
		assert.ErrorIs(t, err, ErrInvalidCSV)
	})
}

func TestImportSales(t *testing.T) {
	ctx := context.Background()
	caller := domain.Caller{Subject: "analyst@example.com", IP: "10.0.0.7"}

	t.Run("Valid rows are stored and bad rows reported", func(t *testing.T) {
		store := new(mocks.MockSalesStore)
		store.On("InsertSales", mock.Anything, mock.MatchedBy(func(recs []domain.SaleRecord) bool {
			return len(recs) == 2 && recs[0].SourceFile != "" && recs[0].SourceFile != "sales.csv"
		})).Return(2, nil).Once()
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog), WithSalesStore(store))
		svc.snapshot = repository.DemoDashboard()

		summary, err := svc.ImportSales(ctx, "sales.csv", int64(len(salesCSV)), strings.NewReader(salesCSV), caller)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Imported)
		assert.Equal(t, 5, summary.Rejected)
		assert.Len(t, summary.Errors, 5)
		assert.True(t, strings.HasSuffix(summary.File, ".csv"))
		assert.NotEqual(t, "sales.csv", summary.File)
		assert.Nil(t, svc.snapshot, "import must invalidate the dashboard snapshot")
		store.AssertExpectations(t)
	})

	t.Run("No valid rows stores nothing", func(t *testing.T) {
		store := new(mocks.MockSalesStore)
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog), WithSalesStore(store))

		in := strings.Join(SalesCSVHeader, ",") + "\nP1,A,B,C,-1,1,2024-01-01\n"
		summary, err := svc.ImportSales(ctx, "bad.csv", int64(len(in)), strings.NewReader(in), caller)
		assert.ErrorIs(t, err, ErrNoValidRows)
		require.NotNil(t, summary)
		assert.Equal(t, 1, summary.Rejected)
		store.AssertNotCalled(t, "InsertSales", mock.Anything, mock.Anything)
	})

	t.Run("Upload validation", func(t *testing.T) {
		store := new(mocks.MockSalesStore)
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog), WithSalesStore(store), WithMaxUploadSize(10))

		_, err := svc.ImportSales(ctx, "sales.exe", 5, strings.NewReader(""), caller)
		assert.ErrorIs(t, err, security.ErrFileTypeNotAllowed)

		_, err = svc.ImportSales(ctx, "sales.csv", 11, strings.NewReader(salesCSV), caller)
		assert.ErrorIs(t, err, security.ErrFileTooLarge)
	})

	t.Run("Store failure is returned", func(t *testing.T) {
		store := new(mocks.MockSalesStore)
		store.On("InsertSales", mock.Anything, mock.Anything).Return(0, errors.New("constraint"))
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog), WithSalesStore(store))

		_, err := svc.ImportSales(ctx, "sales.csv", int64(len(salesCSV)), strings.NewReader(salesCSV), caller)
		assert.ErrorContains(t, err, "constraint")
	})

	t.Run("Sources without a store cannot import", func(t *testing.T) {
		svc, _ := newTestService(repository.NewStaticSource(), new(mocks.MockAuditLog))
		_, err := svc.ImportSales(ctx, "sales.csv", 10, strings.NewReader(salesCSV), caller)
		assert.ErrorIs(t, err, ErrImportDisabled)
	})
}

func TestDemoCategories(t *testing.T) {
	assert.Equal(t, map[string]domain.CategoryRollup{
		"Electronics":   {TotalRevenue: 70000, Products: 2, AvgPrice: 35000},
		"Clothing":      {TotalRevenue: 15000, Products: 1, AvgPrice: 15000},
		"Home & Garden": {TotalRevenue: 12000, Products: 1, AvgPrice: 12000},
	}, DemoCategories(repository.DemoProducts()))
}

func TestDemoProductRows(t *testing.T) {
	rows := DemoProductRows(repository.DemoProducts())
	require.Len(t, rows, 4)
	assert.Equal(t, domain.DemoProduct{ID: 1, Name: "iPhone 15", Category: "Electronics", Price: 999.99, Revenue: 25000, UnitsSold: 100}, rows[0])
	assert.Equal(t, 4, rows[3].ID)

	assert.Equal(t, 0, DemoProductRows([]domain.ProductPerformance{{ID: "sku-9"}})[0].ID)
}

func TestStartSnapshotRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := new(serviceMocks.MockAnalyticsService)
	svc.On("RefreshSnapshot", mock.Anything).Return(nil).Once()

	scheduler, err := StartSnapshotRefresh(svc, "@every 1h")
	require.NoError(t, err)
	<-scheduler.Stop().Done()
	svc.AssertExpectations(t)

	_, err = StartSnapshotRefresh(svc, "not a spec")
	assert.Error(t, err)
}
