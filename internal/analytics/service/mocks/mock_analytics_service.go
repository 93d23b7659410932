package mocks

import (
	"context"
	"io"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/stretchr/testify/mock"
)

type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) SourceName() string {
	return "mock"
}

func (m *MockAnalyticsService) Dashboard(ctx context.Context) (*domain.DashboardData, error) {
	args := m.Called(ctx)
	if res := args.Get(0); res != nil {
		return res.(*domain.DashboardData), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyticsService) RefreshSnapshot(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAnalyticsService) Query(ctx context.Context, req domain.QueryRequest, caller domain.Caller) (*domain.QueryResult, error) {
	args := m.Called(ctx, req, caller)
	if res := args.Get(0); res != nil {
		return res.(*domain.QueryResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyticsService) RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if res := args.Get(0); res != nil {
		return res.([]domain.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyticsService) ProductPerformance(ctx context.Context, productID string) (*domain.ProductPerformance, error) {
	args := m.Called(ctx, productID)
	if res := args.Get(0); res != nil {
		return res.(*domain.ProductPerformance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyticsService) Recommendations(ctx context.Context, productID string, k int) ([]domain.Recommendation, error) {
	args := m.Called(ctx, productID, k)
	if res := args.Get(0); res != nil {
		return res.([]domain.Recommendation), args.Error(1)
	}
	return nil, args.Error(1)
}

// ImportSales drains r so handlers see the upload fully consumed.
func (m *MockAnalyticsService) ImportSales(ctx context.Context, filename string, size int64, r io.Reader, caller domain.Caller) (*domain.ImportSummary, error) {
	_, _ = io.Copy(io.Discard, r)
	args := m.Called(ctx, filename, size, caller)
	if res := args.Get(0); res != nil {
		return res.(*domain.ImportSummary), args.Error(1)
	}
	return nil, args.Error(1)
}
