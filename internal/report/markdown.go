package report

import (
	"io"
	"math"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/service"
)

// MarkdownWriter renders a report as GitHub flavored Markdown.
type MarkdownWriter struct {
	output io.Writer
}

func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Retail Analytics Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Source", "`" + r.Source + "`"},
			{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")

	w.writeKPIs(md, r)
	w.writeCategories(md, r)
	w.writeProducts(md, r)
	w.writeInsights(md, r)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by retailctl*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeKPIs(md *markdown.Markdown, r *Report) {
	d := r.Dashboard
	md.H2("Key Figures")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total Products", strconv.Itoa(d.TotalProducts)},
			{"Total Revenue", service.Money(d.TotalRevenue)},
			{"Active Users", strconv.Itoa(d.ActiveUsers)},
			{"Conversion Rate", service.Percent(d.ConversionRate) + "%"},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, r *Report) {
	md.H2("Categories")
	md.PlainText("")
	if len(r.Categories) == 0 {
		md.PlainText("No category data.")
		md.PlainText("")
		return
	}

	growth := make(map[string]float64, len(r.Dashboard.TopCategories))
	for _, c := range r.Dashboard.TopCategories {
		growth[c.Name] = c.Growth
	}

	rows := make([][]string, len(r.Categories))
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Revenue by Category"), piechart.WithShowData(true))
	for i, c := range r.Categories {
		g := "-"
		if v, ok := growth[c.Category]; ok {
			g = service.Percent(v) + "%"
		}
		rows[i] = []string{c.Category, service.Money(c.TotalRevenue), strconv.Itoa(c.Products), service.Money(c.AvgPrice), g}
		if c.TotalRevenue > 0 {
			chart.LabelAndIntValue(c.Category, uint64(math.Round(c.TotalRevenue)))
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Revenue", "Products", "Avg Price", "30-day Growth"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeProducts(md *markdown.Markdown, r *Report) {
	md.H2("Top Products")
	md.PlainText("")
	if len(r.TopProducts) == 0 {
		md.PlainText("No product sales recorded.")
		md.PlainText("")
		return
	}
	rows := make([][]string, len(r.TopProducts))
	for i, p := range r.TopProducts {
		rows[i] = []string{p.Name, p.Category, service.Money(p.Price), strconv.Itoa(p.UnitsSold), service.Money(p.Revenue)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Product", "Category", "Price", "Units", "Revenue"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeInsights(md *markdown.Markdown, r *Report) {
	md.H2("Insights")
	md.PlainText("")
	if len(r.Dashboard.RecentInsights) == 0 {
		md.Note("No insights available.")
	} else {
		md.BulletList(r.Dashboard.RecentInsights...)
	}
	md.PlainText("")
}
