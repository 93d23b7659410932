// Package report renders analytics snapshots for operators, as Markdown for
// sharing or JSON for other tools.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/service"
	"golang.org/x/sync/errgroup"
)

const DefaultLimit = 10

// Report is one snapshot of an analytics source.
type Report struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Source      string                      `json:"source"`
	Dashboard   *domain.DashboardData       `json:"dashboard"`
	TopProducts []domain.ProductPerformance `json:"top_products"`
	Categories  []domain.CategoryAnalysis   `json:"categories"`
}

// Writer outputs a report in one format.
type Writer interface {
	Write(r *Report) (int, error)
}

// NewWriter returns the writer for format, "markdown" or "json".
func NewWriter(format string, out io.Writer) (Writer, error) {
	switch format {
	case "markdown", "md":
		return NewMarkdownWriter(out), nil
	case "json":
		return NewJSONWriter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want markdown or json)", format)
	}
}

// Collect queries src concurrently and assembles a report. Insights are the
// heuristic ones; no model is called.
func Collect(ctx context.Context, src repository.Source, limit int, now time.Time) (*Report, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var (
		overview *domain.Overview
		cats     []domain.CategorySummary
		products []domain.ProductPerformance
		analysis []domain.CategoryAnalysis
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		overview, err = src.Overview(gctx, now)
		return err
	})
	g.Go(func() (err error) {
		cats, err = src.TopCategories(gctx, 3, now)
		return err
	})
	g.Go(func() (err error) {
		products, err = src.ProductPerformance(gctx, limit)
		return err
	})
	g.Go(func() (err error) {
		analysis, err = src.CategoryAnalysis(gctx, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect %s report: %w", src.Name(), err)
	}

	d := &domain.DashboardData{
		TotalProducts:  overview.TotalProducts,
		TotalRevenue:   overview.TotalRevenue,
		ActiveUsers:    overview.ActiveUsers,
		ConversionRate: overview.ConversionRate,
		TopCategories:  cats,
	}
	d.RecentInsights = service.HeuristicInsights(d, products)

	return &Report{
		GeneratedAt: now.UTC(),
		Source:      src.Name(),
		Dashboard:   d,
		TopProducts: products,
		Categories:  analysis,
	}, nil
}
