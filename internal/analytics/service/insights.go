package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
)

// InsightPrompt asks the model for short insights over the dashboard figures.
func InsightPrompt(d *domain.DashboardData, products []domain.ProductPerformance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a retail analytics assistant. Write exactly %d short business insights, "+
		"one per line, without numbering or markdown, based only on these figures.\n\n", maxInsights)
	fmt.Fprintf(&b, "Total revenue: %s\n", Money(d.TotalRevenue))
	fmt.Fprintf(&b, "Products sold: %d\n", d.TotalProducts)
	fmt.Fprintf(&b, "Active customers (30 days): %d\n", d.ActiveUsers)
	fmt.Fprintf(&b, "Conversion rate: %.1f%%\n", d.ConversionRate)
	if len(d.TopCategories) > 0 {
		b.WriteString("Top categories:\n")
		for _, c := range d.TopCategories {
			fmt.Fprintf(&b, "- %s: revenue %s, 30-day growth %.1f%%\n", c.Name, Money(c.Revenue), c.Growth)
		}
	}
	if len(products) > 0 {
		b.WriteString("Top products:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s (%s): revenue %s, %d units\n", p.Name, p.Category, Money(p.Revenue), p.UnitsSold)
		}
	}
	return b.String()
}

// HeuristicInsights derives up to three insights without a model.
func HeuristicInsights(d *domain.DashboardData, products []domain.ProductPerformance) []string {
	if d.TotalRevenue == 0 && len(d.TopCategories) == 0 {
		return []string{"No sales recorded yet; import sales data to generate insights"}
	}

	var out []string
	if len(d.TopCategories) > 0 {
		best := d.TopCategories[0]
		for _, c := range d.TopCategories[1:] {
			if c.Growth > best.Growth {
				best = c
			}
		}
		switch {
		case best.Growth > 0:
			out = append(out, fmt.Sprintf("%s category showing %s%% growth", best.Name, Percent(best.Growth)))
		case best.Growth < 0:
			out = append(out, fmt.Sprintf("%s category revenue down %s%% over the last 30 days", best.Name, Percent(-best.Growth)))
		default:
			out = append(out, fmt.Sprintf("%s leads category revenue with %s", d.TopCategories[0].Name, Money(d.TopCategories[0].Revenue)))
		}
	}
	if len(products) > 0 {
		top := products[0]
		out = append(out, fmt.Sprintf("%s leads product revenue with %s from %d units", top.Name, Money(top.Revenue), top.UnitsSold))
	}
	if d.ActiveUsers > 0 {
		out = append(out, fmt.Sprintf("Conversion rate at %s%% across %d active customers", Percent(d.ConversionRate), d.ActiveUsers))
	}
	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

// Money formats v as dollars with thousands separators, e.g. $45,000.50.
func Money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}

// Percent formats v with at most one decimal, dropping a trailing ".0".
func Percent(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
