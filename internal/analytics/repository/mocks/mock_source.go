package mocks

import (
	"context"
	"time"

	aDomain "github.com/ridloal/retail-analytics-engine/internal/analytics/domain"

	"github.com/stretchr/testify/mock"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Name() string {
	return "mock"
}

func (m *MockSource) Overview(ctx context.Context, now time.Time) (*aDomain.Overview, error) {
	args := m.Called(ctx, now)
	if res := args.Get(0); res != nil {
		return res.(*aDomain.Overview), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) TopCategories(ctx context.Context, limit int, now time.Time) ([]aDomain.CategorySummary, error) {
	args := m.Called(ctx, limit, now)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.CategorySummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) ProductPerformance(ctx context.Context, limit int) ([]aDomain.ProductPerformance, error) {
	args := m.Called(ctx, limit)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.ProductPerformance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) ProductByID(ctx context.Context, id string) (*aDomain.ProductPerformance, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*aDomain.ProductPerformance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) CategoryAnalysis(ctx context.Context, limit int) ([]aDomain.CategoryAnalysis, error) {
	args := m.Called(ctx, limit)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.CategoryAnalysis), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) MonthlyRevenue(ctx context.Context, since time.Time) ([]aDomain.MonthlyRevenue, error) {
	args := m.Called(ctx, since)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.MonthlyRevenue), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) CustomerStats(ctx context.Context) ([]aDomain.CustomerStats, error) {
	args := m.Called(ctx)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.CustomerStats), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSalesStore struct {
	mock.Mock
}

func (m *MockSalesStore) InsertSales(ctx context.Context, records []aDomain.SaleRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) RecordQuery(ctx context.Context, entry *aDomain.AuditEntry) error {
	args := m.Called(ctx, entry)
	if entry != nil && args.Error(0) == nil {
		entry.ID = "mocked-audit-id"
	}
	return args.Error(0)
}

func (m *MockAuditLog) RecentQueries(ctx context.Context, limit int) ([]aDomain.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if res := args.Get(0); res != nil {
		return res.([]aDomain.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}
