package service

import (
	"context"
	"math"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
)

const periodLayout = "2006-01"

// trend fits a least-squares line over the last months calendar months,
// including the current one, and extends it horizon months ahead.
func (s *analyticsServiceImpl) trend(ctx context.Context, months, horizon int) (*domain.TrendForecast, error) {
	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := current.AddDate(0, -(months - 1), 0)

	rows, err := s.source.MonthlyRevenue(ctx, start)
	if err != nil {
		return nil, err
	}
	byPeriod := make(map[string]float64, len(rows))
	for _, r := range rows {
		byPeriod[r.Month.UTC().Format(periodLayout)] += r.Revenue
	}

	history := make([]domain.TrendPoint, months)
	ys := make([]float64, months)
	for i := range history {
		period := start.AddDate(0, i, 0).Format(periodLayout)
		ys[i] = byPeriod[period]
		history[i] = domain.TrendPoint{Period: period, Revenue: repository.Round(ys[i], 2)}
	}

	slope, intercept := LeastSquares(ys)
	projection := make([]domain.TrendPoint, horizon)
	for h := range projection {
		x := float64(months + h)
		projection[h] = domain.TrendPoint{
			Period:    start.AddDate(0, months+h, 0).Format(periodLayout),
			Revenue:   repository.Round(math.Max(0, intercept+slope*x), 2),
			Projected: true,
		}
	}

	return &domain.TrendForecast{
		History:     history,
		Projection:  projection,
		Slope:       repository.Round(slope, 2),
		Intercept:   repository.Round(intercept, 2),
		GrowthTrend: trendDirection(slope, ys),
	}, nil
}

// LeastSquares fits y = intercept + slope*x for x = 0..len(ys)-1.
func LeastSquares(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	switch len(ys) {
	case 0:
		return 0, 0
	case 1:
		return 0, ys[0]
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// trendDirection treats a monthly change under 1% of the mean as flat.
func trendDirection(slope float64, ys []float64) string {
	var sum float64
	for _, y := range ys {
		sum += y
	}
	if len(ys) == 0 || sum == 0 {
		return "flat"
	}
	relative := slope / (sum / float64(len(ys)))
	switch {
	case relative > 0.01:
		return "growing"
	case relative < -0.01:
		return "declining"
	default:
		return "flat"
	}
}

// Segments groups customers by recency and frequency. Every segment is
// present in the result, in the order of domain segment constants.
func Segments(stats []domain.CustomerStats, now time.Time) []domain.CustomerSegment {
	order := []string{
		domain.SegmentLoyalChampion,
		domain.SegmentSatisfiedCustomer,
		domain.SegmentNeutralCustomer,
		domain.SegmentAtRiskCustomer,
	}
	bySegment := make(map[string]*domain.CustomerSegment, len(order))
	orders := make(map[string]int, len(order))
	for _, name := range order {
		bySegment[name] = &domain.CustomerSegment{Segment: name}
	}

	for _, c := range stats {
		name := SegmentOf(c, now)
		seg := bySegment[name]
		seg.Customers++
		seg.TotalRevenue += c.TotalSpent
		orders[name] += c.Orders
	}

	out := make([]domain.CustomerSegment, 0, len(order))
	for _, name := range order {
		seg := bySegment[name]
		seg.TotalRevenue = repository.Round(seg.TotalRevenue, 2)
		if orders[name] > 0 {
			seg.AvgOrderValue = repository.Round(seg.TotalRevenue/float64(orders[name]), 2)
		}
		out = append(out, *seg)
	}
	return out
}

// SegmentOf classifies one customer. Anyone silent for more than 90 days is
// at risk; frequent recent buyers are champions.
func SegmentOf(c domain.CustomerStats, now time.Time) string {
	recency := now.Sub(c.LastPurchase)
	const day = 24 * time.Hour
	switch {
	case recency > 90*day:
		return domain.SegmentAtRiskCustomer
	case c.Orders >= 5 && recency <= 30*day:
		return domain.SegmentLoyalChampion
	case c.Orders >= 2 && recency <= 60*day:
		return domain.SegmentSatisfiedCustomer
	default:
		return domain.SegmentNeutralCustomer
	}
}
