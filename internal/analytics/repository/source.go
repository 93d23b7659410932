package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
)

var ErrProductNotFound = errors.New("no sales recorded for product")

// Source answers the analytical queries behind the dashboard and the query API.
type Source interface {
	Name() string
	Overview(ctx context.Context, now time.Time) (*domain.Overview, error)
	// TopCategories ranks categories by revenue; growth compares the last 30
	// days before now with the 30 days before that, in percent.
	TopCategories(ctx context.Context, limit int, now time.Time) ([]domain.CategorySummary, error)
	ProductPerformance(ctx context.Context, limit int) ([]domain.ProductPerformance, error)
	ProductByID(ctx context.Context, id string) (*domain.ProductPerformance, error)
	CategoryAnalysis(ctx context.Context, limit int) ([]domain.CategoryAnalysis, error)
	// MonthlyRevenue returns revenue per calendar month from since onwards.
	// Months without sales may be missing.
	MonthlyRevenue(ctx context.Context, since time.Time) ([]domain.MonthlyRevenue, error)
	CustomerStats(ctx context.Context) ([]domain.CustomerStats, error)
}

// SalesStore persists imported sales facts. Implementations insert all
// records or none.
type SalesStore interface {
	InsertSales(ctx context.Context, records []domain.SaleRecord) (int, error)
}

// AuditLog records executed analytics queries.
type AuditLog interface {
	RecordQuery(ctx context.Context, entry *domain.AuditEntry) error
	RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

const (
	growthWindow = 30 * 24 * time.Hour
	activeWindow = 30 * 24 * time.Hour
)

// Growth returns the percentage change from previous to current, rounded to
// one decimal. No previous revenue means no measurable growth.
func Growth(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return Round((current-previous)/previous*100, 1)
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
