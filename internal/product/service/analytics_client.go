package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/product/domain"
)

// AnalyticsClient looks up the sales performance of one product. A nil
// result with a nil error means the product has no recorded sales.
type AnalyticsClient interface {
	GetProductPerformance(ctx context.Context, productID string) (*domain.Performance, error)
}

// TokenFunc returns a bearer token for service to service calls.
type TokenFunc func() (string, error)

type HTTPAnalyticsClient struct {
	BaseURL    string
	HTTPClient *http.Client
	token      TokenFunc
}

func NewHTTPAnalyticsClient(baseURL string, token TokenFunc) *HTTPAnalyticsClient {
	return &HTTPAnalyticsClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		token: token,
	}
}

func (c *HTTPAnalyticsClient) GetProductPerformance(ctx context.Context, productID string) (*domain.Performance, error) {
	reqURL := fmt.Sprintf("%s/api/v1/analytics/products/%s/performance", c.BaseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to analytics service: %w", err)
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return nil, fmt.Errorf("failed to mint service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analytics service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		logger.Warn("AnalyticsClient.GetProductPerformance: analytics service returned status %d for product %s", resp.StatusCode, productID)
		return nil, fmt.Errorf("analytics service returned status: %d", resp.StatusCode)
	}

	var perf domain.Performance
	if err := json.NewDecoder(resp.Body).Decode(&perf); err != nil {
		return nil, fmt.Errorf("failed to decode response from analytics service: %w", err)
	}
	return &perf, nil
}
