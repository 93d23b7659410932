package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
)

const (
	SalesTable = "sales_facts"
	AuditTable = "analytics_queries"
)

// BigQuerySource runs the analytical queries against a BigQuery dataset.
type BigQuerySource struct {
	client  *bigquery.Client
	project string
	dataset string
}

func NewBigQuerySource(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*BigQuerySource, error) {
	if project == "" || dataset == "" {
		return nil, errors.New("BigQuery project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	return &BigQuerySource{client: client, project: project, dataset: dataset}, nil
}

func (s *BigQuerySource) Close() error {
	return s.client.Close()
}

func (s *BigQuerySource) Name() string { return "bigquery" }

func (s *BigQuerySource) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// read runs query and loads every row into a fresh T.
func read[T any](ctx context.Context, s *BigQuerySource, query string, params ...bigquery.QueryParameter) ([]T, error) {
	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuery query failed: %w", err)
	}

	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQuery row read failed: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

type bqOverviewRow struct {
	Products  int64   `bigquery:"products"`
	Revenue   float64 `bigquery:"revenue"`
	Customers int64   `bigquery:"customers"`
	Active    int64   `bigquery:"active"`
}

func (s *BigQuerySource) Overview(ctx context.Context, now time.Time) (*domain.Overview, error) {
	rows, err := read[bqOverviewRow](ctx, s, `SELECT
			COUNT(DISTINCT product_id) AS products,
			COALESCE(SUM(quantity * unit_price), 0) AS revenue,
			COUNT(DISTINCT customer_id) AS customers,
			COUNT(DISTINCT IF(sold_at >= @active_since, customer_id, NULL)) AS active
		FROM `+s.table(SalesTable),
		bigquery.QueryParameter{Name: "active_since", Value: now.UTC().Add(-activeWindow)})
	if err != nil {
		logger.Error("Overview: BigQuery query failed", err, nil)
		return nil, err
	}
	o := &domain.Overview{}
	if len(rows) == 0 {
		return o, nil
	}
	r := rows[0]
	o.TotalProducts = int(r.Products)
	o.TotalRevenue = Round(r.Revenue, 2)
	o.ActiveUsers = int(r.Active)
	if r.Customers > 0 {
		o.ConversionRate = Round(float64(r.Active)/float64(r.Customers)*100, 1)
	}
	return o, nil
}

type bqCategoryRow struct {
	Category string  `bigquery:"category"`
	Revenue  float64 `bigquery:"revenue"`
	Current  float64 `bigquery:"current_revenue"`
	Previous float64 `bigquery:"previous_revenue"`
}

func (s *BigQuerySource) TopCategories(ctx context.Context, limit int, now time.Time) ([]domain.CategorySummary, error) {
	now = now.UTC()
	rows, err := read[bqCategoryRow](ctx, s, `SELECT category,
			SUM(quantity * unit_price) AS revenue,
			COALESCE(SUM(IF(sold_at >= @current_start AND sold_at < @now, quantity * unit_price, NULL)), 0) AS current_revenue,
			COALESCE(SUM(IF(sold_at >= @previous_start AND sold_at < @current_start, quantity * unit_price, NULL)), 0) AS previous_revenue
		FROM `+s.table(SalesTable)+`
		GROUP BY category
		ORDER BY revenue DESC, category
		LIMIT @limit`,
		bigquery.QueryParameter{Name: "now", Value: now},
		bigquery.QueryParameter{Name: "current_start", Value: now.Add(-growthWindow)},
		bigquery.QueryParameter{Name: "previous_start", Value: now.Add(-2 * growthWindow)},
		bigquery.QueryParameter{Name: "limit", Value: limit})
	if err != nil {
		logger.Error("TopCategories: BigQuery query failed", err, nil)
		return nil, err
	}
	out := make([]domain.CategorySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CategorySummary{
			Name:    r.Category,
			Revenue: Round(r.Revenue, 2),
			Growth:  Growth(r.Current, r.Previous),
		})
	}
	return out, nil
}

type bqProductRow struct {
	ProductID string  `bigquery:"product_id"`
	Name      string  `bigquery:"name"`
	Category  string  `bigquery:"category"`
	Price     float64 `bigquery:"price"`
	Revenue   float64 `bigquery:"revenue"`
	UnitsSold int64   `bigquery:"units_sold"`
}

func (r bqProductRow) performance() domain.ProductPerformance {
	return domain.ProductPerformance{
		ID:        r.ProductID,
		Name:      r.Name,
		Category:  r.Category,
		Price:     Round(r.Price, 2),
		Revenue:   Round(r.Revenue, 2),
		UnitsSold: int(r.UnitsSold),
	}
}

func (s *BigQuerySource) productQuery(filter string) string {
	return `SELECT product_id, ANY_VALUE(product_name) AS name, ANY_VALUE(category) AS category,
			AVG(unit_price) AS price, SUM(quantity * unit_price) AS revenue, SUM(quantity) AS units_sold
		FROM ` + s.table(SalesTable) + filter + `
		GROUP BY product_id`
}

func (s *BigQuerySource) ProductPerformance(ctx context.Context, limit int) ([]domain.ProductPerformance, error) {
	rows, err := read[bqProductRow](ctx, s, s.productQuery("")+`
		ORDER BY revenue DESC, product_id
		LIMIT @limit`,
		bigquery.QueryParameter{Name: "limit", Value: limit})
	if err != nil {
		logger.Error("ProductPerformance: BigQuery query failed", err, nil)
		return nil, err
	}
	out := make([]domain.ProductPerformance, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.performance())
	}
	return out, nil
}

func (s *BigQuerySource) ProductByID(ctx context.Context, id string) (*domain.ProductPerformance, error) {
	rows, err := read[bqProductRow](ctx, s, s.productQuery(" WHERE product_id = @id"),
		bigquery.QueryParameter{Name: "id", Value: id})
	if err != nil {
		logger.Error("ProductByID: BigQuery query failed", err, map[string]interface{}{"product_id": id})
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrProductNotFound
	}
	p := rows[0].performance()
	return &p, nil
}

type bqCategoryAnalysisRow struct {
	Category     string  `bigquery:"category"`
	TotalRevenue float64 `bigquery:"total_revenue"`
	Products     int64   `bigquery:"products"`
	AvgPrice     float64 `bigquery:"avg_price"`
}

func (s *BigQuerySource) CategoryAnalysis(ctx context.Context, limit int) ([]domain.CategoryAnalysis, error) {
	rows, err := read[bqCategoryAnalysisRow](ctx, s, `SELECT category,
			SUM(quantity * unit_price) AS total_revenue,
			COUNT(DISTINCT product_id) AS products,
			AVG(unit_price) AS avg_price
		FROM `+s.table(SalesTable)+`
		GROUP BY category
		ORDER BY total_revenue DESC, category
		LIMIT @limit`,
		bigquery.QueryParameter{Name: "limit", Value: limit})
	if err != nil {
		logger.Error("CategoryAnalysis: BigQuery query failed", err, nil)
		return nil, err
	}
	out := make([]domain.CategoryAnalysis, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CategoryAnalysis{
			Category:     r.Category,
			TotalRevenue: Round(r.TotalRevenue, 2),
			Products:     int(r.Products),
			AvgPrice:     Round(r.AvgPrice, 2),
		})
	}
	return out, nil
}

type bqMonthRow struct {
	Month   time.Time `bigquery:"month"`
	Revenue float64   `bigquery:"revenue"`
}

func (s *BigQuerySource) MonthlyRevenue(ctx context.Context, since time.Time) ([]domain.MonthlyRevenue, error) {
	rows, err := read[bqMonthRow](ctx, s, `SELECT TIMESTAMP_TRUNC(sold_at, MONTH) AS month,
			SUM(quantity * unit_price) AS revenue
		FROM `+s.table(SalesTable)+`
		WHERE sold_at >= @since
		GROUP BY month
		ORDER BY month`,
		bigquery.QueryParameter{Name: "since", Value: monthStart(since)})
	if err != nil {
		logger.Error("MonthlyRevenue: BigQuery query failed", err, nil)
		return nil, err
	}
	out := make([]domain.MonthlyRevenue, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.MonthlyRevenue{Month: monthStart(r.Month), Revenue: Round(r.Revenue, 2)})
	}
	return out, nil
}

type bqCustomerRow struct {
	CustomerID   string    `bigquery:"customer_id"`
	Orders       int64     `bigquery:"orders"`
	TotalSpent   float64   `bigquery:"total_spent"`
	LastPurchase time.Time `bigquery:"last_purchase"`
}

func (s *BigQuerySource) CustomerStats(ctx context.Context) ([]domain.CustomerStats, error) {
	rows, err := read[bqCustomerRow](ctx, s, `SELECT customer_id,
			COUNT(*) AS orders,
			SUM(quantity * unit_price) AS total_spent,
			MAX(sold_at) AS last_purchase
		FROM `+s.table(SalesTable)+`
		GROUP BY customer_id
		ORDER BY customer_id`)
	if err != nil {
		logger.Error("CustomerStats: BigQuery query failed", err, nil)
		return nil, err
	}
	out := make([]domain.CustomerStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CustomerStats{
			CustomerID:   r.CustomerID,
			Orders:       int(r.Orders),
			TotalSpent:   Round(r.TotalSpent, 2),
			LastPurchase: r.LastPurchase.UTC(),
		})
	}
	return out, nil
}

// InsertSales streams records into the sales table. The insert API accepts a
// batch as a whole or rejects it.
func (s *BigQuerySource) InsertSales(ctx context.Context, records []domain.SaleRecord) (int, error) {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].SoldAt = records[i].SoldAt.UTC()
	}
	inserter := s.client.Dataset(s.dataset).Table(SalesTable).Inserter()
	if err := inserter.Put(ctx, records); err != nil {
		logger.Error("InsertSales: BigQuery insert failed", err, map[string]interface{}{"rows": len(records)})
		return 0, err
	}
	return len(records), nil
}

// RecordQuery appends e to the audit table.
func (s *BigQuerySource) RecordQuery(ctx context.Context, e *domain.AuditEntry) error {
	e.ID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if err := s.client.Dataset(s.dataset).Table(AuditTable).Inserter().Put(ctx, e); err != nil {
		return fmt.Errorf("failed to record query audit: %w", err)
	}
	return nil
}

func (s *BigQuerySource) RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT id, user_id, query_type, query_params, results_count, execution_time,
		ip_address, user_agent, created_at
		FROM %s ORDER BY created_at DESC, id DESC LIMIT @limit`, s.table(AuditTable))
	return read[domain.AuditEntry](ctx, s, query, bigquery.QueryParameter{Name: "limit", Value: limit})
}

var auditSchema = bigquery.Schema{
	{Name: "id", Type: bigquery.StringFieldType, Required: true},
	{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "query_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "query_params", Type: bigquery.StringFieldType},
	{Name: "results_count", Type: bigquery.IntegerFieldType},
	{Name: "execution_time", Type: bigquery.FloatFieldType},
	{Name: "ip_address", Type: bigquery.StringFieldType},
	{Name: "user_agent", Type: bigquery.StringFieldType},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
}

// EnsureDataset creates the dataset and both tables. Existing objects are left alone.
func (s *BigQuerySource) EnsureDataset(ctx context.Context, location string) error {
	ds := s.client.Dataset(s.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to create dataset %s: %w", s.dataset, err)
	}

	salesSchema, err := bigquery.InferSchema(domain.SaleRecord{})
	if err != nil {
		return fmt.Errorf("failed to infer %s schema: %w", SalesTable, err)
	}
	tables := []struct {
		name string
		meta *bigquery.TableMetadata
	}{
		{SalesTable, &bigquery.TableMetadata{
			Schema:           salesSchema,
			TimePartitioning: &bigquery.TimePartitioning{Field: "sold_at", Type: bigquery.MonthPartitioningType},
		}},
		{AuditTable, &bigquery.TableMetadata{Schema: auditSchema}},
	}
	for _, t := range tables {
		if err := ds.Table(t.name).Create(ctx, t.meta); err != nil && !alreadyExists(err) {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		logger.Info("BigQuery table %s.%s ready", s.dataset, t.name)
	}
	return nil
}

// RunScript executes each statement of script in order and returns how many ran.
func (s *BigQuerySource) RunScript(ctx context.Context, script string) (int, error) {
	statements := SplitStatements(script)
	for i, stmt := range statements {
		job, err := s.client.Query(stmt).Run(ctx)
		if err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
		status, err := job.Wait(ctx)
		if err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
		if err := status.Err(); err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(statements), nil
}

// SplitStatements splits a SQL script on semicolons that end a line, dropping
// "--" comment lines and empty statements.
func SplitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.HasSuffix(trimmed, ";") {
			cur.WriteString(strings.TrimSuffix(trimmed, ";"))
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return out
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
