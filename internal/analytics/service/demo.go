package service

import (
	"strconv"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
)

// DemoCategories rolls the demo products up by category. avg_price is the
// category revenue divided by its product count, which is what the demo page
// has always displayed.
func DemoCategories(products []domain.ProductPerformance) map[string]domain.CategoryRollup {
	out := make(map[string]domain.CategoryRollup)
	for _, p := range products {
		c := out[p.Category]
		c.TotalRevenue += p.Revenue
		c.Products++
		c.AvgPrice = c.TotalRevenue / float64(c.Products)
		out[p.Category] = c
	}
	return out
}

// DemoProductRows converts the demo products for the public listing. Demo ids
// are numeric; anything else is served as 0.
func DemoProductRows(products []domain.ProductPerformance) []domain.DemoProduct {
	out := make([]domain.DemoProduct, len(products))
	for i, p := range products {
		id, _ := strconv.Atoi(p.ID)
		out[i] = domain.DemoProduct{
			ID:        id,
			Name:      p.Name,
			Category:  p.Category,
			Price:     p.Price,
			Revenue:   p.Revenue,
			UnitsSold: p.UnitsSold,
		}
	}
	return out
}
