package repository

import (
	"context"
	"sort"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
)

var demoDashboard = domain.DashboardData{
	TotalProducts:  1250,
	TotalRevenue:   450000.00,
	ActiveUsers:    890,
	ConversionRate: 3.2,
	TopCategories: []domain.CategorySummary{
		{Name: "Electronics", Revenue: 125000, Growth: 12.5},
		{Name: "Clothing", Revenue: 98000, Growth: 8.3},
		{Name: "Home & Garden", Revenue: 87000, Growth: 15.2},
	},
	RecentInsights: []string{
		"Electronics category showing 12.5% growth",
		"Customer satisfaction improved by 8.3%",
		"New product recommendations increased conversion by 15%",
	},
}

var demoProducts = []domain.ProductPerformance{
	{ID: "1", Name: "iPhone 15", Category: "Electronics", Price: 999.99, Revenue: 25000, UnitsSold: 100},
	{ID: "2", Name: "MacBook Pro", Category: "Electronics", Price: 2499.99, Revenue: 45000, UnitsSold: 75},
	{ID: "3", Name: "Nike Air Max", Category: "Clothing", Price: 129.99, Revenue: 15000, UnitsSold: 200},
	{ID: "4", Name: "Garden Tools Set", Category: "Home & Garden", Price: 89.99, Revenue: 12000, UnitsSold: 150},
}

// Revenue for the twelve months ending with the current one, oldest first.
var demoMonthly = []float64{
	31200, 32800, 34100, 33600, 35900, 37200,
	36800, 38900, 40100, 41500, 42700, 45200,
}

var demoCustomers = []domain.CustomerStats{
	{CustomerID: "C-1001", Orders: 14, TotalSpent: 18450.50},
	{CustomerID: "C-1002", Orders: 9, TotalSpent: 7320.00},
	{CustomerID: "C-1003", Orders: 4, TotalSpent: 2150.75},
	{CustomerID: "C-1004", Orders: 2, TotalSpent: 389.98},
	{CustomerID: "C-1005", Orders: 1, TotalSpent: 129.99},
	{CustomerID: "C-1006", Orders: 6, TotalSpent: 5410.20},
}

// Days since the last purchase, parallel to demoCustomers.
var demoRecency = []int{3, 12, 40, 75, 150, 120}

// DemoDashboard returns a copy of the demo dashboard.
func DemoDashboard() *domain.DashboardData {
	return demoDashboard.Clone()
}

// DemoProducts returns a copy of the demo product performance list.
func DemoProducts() []domain.ProductPerformance {
	return append([]domain.ProductPerformance(nil), demoProducts...)
}

// StaticSource serves the fixed demo data set. It never fails.
type StaticSource struct {
	now func() time.Time
}

func NewStaticSource() *StaticSource {
	return &StaticSource{now: time.Now}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Overview(_ context.Context, _ time.Time) (*domain.Overview, error) {
	return &domain.Overview{
		TotalProducts:  demoDashboard.TotalProducts,
		TotalRevenue:   demoDashboard.TotalRevenue,
		ActiveUsers:    demoDashboard.ActiveUsers,
		ConversionRate: demoDashboard.ConversionRate,
	}, nil
}

func (s *StaticSource) TopCategories(_ context.Context, limit int, _ time.Time) ([]domain.CategorySummary, error) {
	cats := append([]domain.CategorySummary(nil), demoDashboard.TopCategories...)
	if limit > 0 && len(cats) > limit {
		cats = cats[:limit]
	}
	return cats, nil
}

func (s *StaticSource) ProductPerformance(_ context.Context, limit int) ([]domain.ProductPerformance, error) {
	products := DemoProducts()
	sort.SliceStable(products, func(i, j int) bool { return products[i].Revenue > products[j].Revenue })
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *StaticSource) ProductByID(_ context.Context, id string) (*domain.ProductPerformance, error) {
	for _, p := range demoProducts {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, ErrProductNotFound
}

func (s *StaticSource) CategoryAnalysis(_ context.Context, limit int) ([]domain.CategoryAnalysis, error) {
	byName := map[string]*domain.CategoryAnalysis{}
	var order []string
	priceSum := map[string]float64{}
	for _, p := range demoProducts {
		c, ok := byName[p.Category]
		if !ok {
			c = &domain.CategoryAnalysis{Category: p.Category}
			byName[p.Category] = c
			order = append(order, p.Category)
		}
		c.TotalRevenue += p.Revenue
		c.Products++
		priceSum[p.Category] += p.Price
	}

	out := make([]domain.CategoryAnalysis, 0, len(order))
	for _, name := range order {
		c := byName[name]
		c.AvgPrice = Round(priceSum[name]/float64(c.Products), 2)
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalRevenue > out[j].TotalRevenue })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *StaticSource) MonthlyRevenue(_ context.Context, since time.Time) ([]domain.MonthlyRevenue, error) {
	current := monthStart(s.now())
	since = monthStart(since)
	var out []domain.MonthlyRevenue
	for i, revenue := range demoMonthly {
		month := current.AddDate(0, i-len(demoMonthly)+1, 0)
		if month.Before(since) {
			continue
		}
		out = append(out, domain.MonthlyRevenue{Month: month, Revenue: revenue})
	}
	return out, nil
}

func (s *StaticSource) CustomerStats(_ context.Context) ([]domain.CustomerStats, error) {
	now := s.now().UTC()
	out := make([]domain.CustomerStats, len(demoCustomers))
	for i, c := range demoCustomers {
		c.LastPurchase = now.AddDate(0, 0, -demoRecency[i])
		out[i] = c
	}
	return out, nil
}
