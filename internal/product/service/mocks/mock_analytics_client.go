package mocks

import (
	"context"

	"github.com/ridloal/retail-analytics-engine/internal/product/domain"
	"github.com/stretchr/testify/mock"
)

type MockAnalyticsClient struct {
	mock.Mock
}

func (m *MockAnalyticsClient) GetProductPerformance(ctx context.Context, productID string) (*domain.Performance, error) {
	args := m.Called(ctx, productID)
	if res := args.Get(0); res != nil {
		return res.(*domain.Performance), args.Error(1)
	}
	return nil, args.Error(1)
}
