package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/platform/database"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sales_facts (
		id VARCHAR(36) PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL,
		product_name VARCHAR(200) NOT NULL,
		category VARCHAR(100) NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
		sold_at TIMESTAMP NOT NULL,
		source_file VARCHAR(255) NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_facts_product ON sales_facts (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_facts_sold_at ON sales_facts (sold_at)`,
	`CREATE TABLE IF NOT EXISTS analytics_queries (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		query_type VARCHAR(50) NOT NULL,
		query_params TEXT NOT NULL,
		results_count INTEGER NOT NULL DEFAULT 0,
		execution_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(500) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_queries_created ON analytics_queries (created_at)`,
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// SQLSource reads sales facts from PostgreSQL or SQLite.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Name() string { return "sql" }

func (s *SQLSource) Overview(ctx context.Context, now time.Time) (*domain.Overview, error) {
	var (
		o         domain.Overview
		customers int
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT product_id), COALESCE(SUM(quantity * unit_price), 0), COUNT(DISTINCT customer_id)
		FROM sales_facts`).Scan(&o.TotalProducts, &o.TotalRevenue, &customers)
	if err != nil {
		logger.Error("Overview: totals query failed", err, nil)
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT customer_id) FROM sales_facts WHERE sold_at >= $1`,
		now.UTC().Add(-activeWindow)).Scan(&o.ActiveUsers)
	if err != nil {
		logger.Error("Overview: active customers query failed", err, nil)
		return nil, err
	}

	o.TotalRevenue = Round(o.TotalRevenue, 2)
	if customers > 0 {
		o.ConversionRate = Round(float64(o.ActiveUsers)/float64(customers)*100, 1)
	}
	return &o, nil
}

func (s *SQLSource) TopCategories(ctx context.Context, limit int, now time.Time) ([]domain.CategorySummary, error) {
	now = now.UTC()
	query := `SELECT category,
			SUM(quantity * unit_price) AS revenue,
			COALESCE(SUM(CASE WHEN sold_at >= $1 AND sold_at < $2 THEN quantity * unit_price END), 0),
			COALESCE(SUM(CASE WHEN sold_at >= $3 AND sold_at < $1 THEN quantity * unit_price END), 0)
		FROM sales_facts
		GROUP BY category
		ORDER BY revenue DESC, category ASC
		LIMIT $4`
	rows, err := s.db.QueryContext(ctx, query, now.Add(-growthWindow), now, now.Add(-2*growthWindow), limit)
	if err != nil {
		logger.Error("TopCategories: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategorySummary
	for rows.Next() {
		var (
			c                 domain.CategorySummary
			current, previous float64
		)
		if err := rows.Scan(&c.Name, &c.Revenue, &current, &previous); err != nil {
			logger.Error("TopCategories: scan failed", err, nil)
			return nil, err
		}
		c.Revenue = Round(c.Revenue, 2)
		c.Growth = Growth(current, previous)
		out = append(out, c)
	}
	return out, rows.Err()
}

const productPerformanceQuery = `SELECT product_id, MAX(product_name), MAX(category), AVG(unit_price),
		SUM(quantity * unit_price) AS revenue, SUM(quantity)
	FROM sales_facts`

func scanPerformance(row interface{ Scan(dest ...any) error }) (*domain.ProductPerformance, error) {
	var p domain.ProductPerformance
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Revenue, &p.UnitsSold); err != nil {
		return nil, err
	}
	p.Price = Round(p.Price, 2)
	p.Revenue = Round(p.Revenue, 2)
	return &p, nil
}

func (s *SQLSource) ProductPerformance(ctx context.Context, limit int) ([]domain.ProductPerformance, error) {
	rows, err := s.db.QueryContext(ctx, productPerformanceQuery+`
		GROUP BY product_id
		ORDER BY revenue DESC, product_id ASC
		LIMIT $1`, limit)
	if err != nil {
		logger.Error("ProductPerformance: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductPerformance
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			logger.Error("ProductPerformance: scan failed", err, nil)
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLSource) ProductByID(ctx context.Context, id string) (*domain.ProductPerformance, error) {
	row := s.db.QueryRowContext(ctx, productPerformanceQuery+`
		WHERE product_id = $1
		GROUP BY product_id`, id)
	p, err := scanPerformance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		logger.Error("ProductByID: query failed", err, map[string]interface{}{"product_id": id})
		return nil, err
	}
	return p, nil
}

func (s *SQLSource) CategoryAnalysis(ctx context.Context, limit int) ([]domain.CategoryAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, SUM(quantity * unit_price) AS total_revenue,
			COUNT(DISTINCT product_id), AVG(unit_price)
		FROM sales_facts
		GROUP BY category
		ORDER BY total_revenue DESC, category ASC
		LIMIT $1`, limit)
	if err != nil {
		logger.Error("CategoryAnalysis: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryAnalysis
	for rows.Next() {
		var c domain.CategoryAnalysis
		if err := rows.Scan(&c.Category, &c.TotalRevenue, &c.Products, &c.AvgPrice); err != nil {
			logger.Error("CategoryAnalysis: scan failed", err, nil)
			return nil, err
		}
		c.TotalRevenue = Round(c.TotalRevenue, 2)
		c.AvgPrice = Round(c.AvgPrice, 2)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MonthlyRevenue buckets in Go; month truncation differs between PostgreSQL and SQLite.
func (s *SQLSource) MonthlyRevenue(ctx context.Context, since time.Time) ([]domain.MonthlyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sold_at, quantity * unit_price FROM sales_facts WHERE sold_at >= $1`,
		monthStart(since))
	if err != nil {
		logger.Error("MonthlyRevenue: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	buckets := map[time.Time]float64{}
	for rows.Next() {
		var (
			soldAt database.Time
			amount float64
		)
		if err := rows.Scan(&soldAt, &amount); err != nil {
			logger.Error("MonthlyRevenue: scan failed", err, nil)
			return nil, err
		}
		buckets[monthStart(soldAt.Time)] += amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortedMonths(buckets), nil
}

func sortedMonths(buckets map[time.Time]float64) []domain.MonthlyRevenue {
	out := make([]domain.MonthlyRevenue, 0, len(buckets))
	for month, revenue := range buckets {
		out = append(out, domain.MonthlyRevenue{Month: month, Revenue: Round(revenue, 2)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

func (s *SQLSource) CustomerStats(ctx context.Context) ([]domain.CustomerStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT customer_id, COUNT(*), SUM(quantity * unit_price), MAX(sold_at)
		FROM sales_facts
		GROUP BY customer_id
		ORDER BY customer_id`)
	if err != nil {
		logger.Error("CustomerStats: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.CustomerStats
	for rows.Next() {
		var (
			c    domain.CustomerStats
			last database.Time
		)
		if err := rows.Scan(&c.CustomerID, &c.Orders, &c.TotalSpent, &last); err != nil {
			logger.Error("CustomerStats: scan failed", err, nil)
			return nil, err
		}
		c.LastPurchase = last.Time
		c.TotalSpent = Round(c.TotalSpent, 2)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSales stores all records in one transaction.
func (s *SQLSource) InsertSales(ctx context.Context, records []domain.SaleRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("InsertSales: failed to begin tx", err, nil)
		return 0, err
	}
	defer tx.Rollback()

	n, err := insertSales(ctx, tx, records)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		logger.Error("InsertSales: commit failed", err, nil)
		return 0, err
	}
	return n, nil
}

func insertSales(ctx context.Context, db DBTX, records []domain.SaleRecord) (int, error) {
	stmt, err := db.PrepareContext(ctx, `INSERT INTO sales_facts
		(id, product_id, product_name, category, customer_id, quantity, unit_price, sold_at, source_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		logger.Error("InsertSales: failed to prepare statement", err, nil)
		return 0, err
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.SoldAt = rec.SoldAt.UTC()
		_, err := stmt.ExecContext(ctx, rec.ID, rec.ProductID, rec.ProductName, rec.Category, rec.CustomerID,
			rec.Quantity, rec.UnitPrice, rec.SoldAt, rec.SourceFile)
		if err != nil {
			logger.Error("InsertSales: failed to insert row", err, map[string]interface{}{"product_id": rec.ProductID})
			return 0, err
		}
	}
	return len(records), nil
}

// SQLAuditLog stores executed queries in the analytics_queries table.
type SQLAuditLog struct {
	db *sql.DB
}

func NewSQLAuditLog(db *sql.DB) *SQLAuditLog {
	return &SQLAuditLog{db: db}
}

func (a *SQLAuditLog) RecordQuery(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := a.db.ExecContext(ctx, `INSERT INTO analytics_queries
		(id, user_id, query_type, query_params, results_count, execution_time, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, e.QueryType, e.QueryParams, e.ResultsCount, e.ExecutionTime, e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		logger.Error("RecordQuery: insert failed", err, map[string]interface{}{"query_type": e.QueryType})
		return err
	}
	return nil
}

// RecentQueries returns the newest entries first.
func (a *SQLAuditLog) RecentQueries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, user_id, query_type, query_params, results_count, execution_time,
			ip_address, user_agent, created_at
		FROM analytics_queries
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		logger.Error("RecentQueries: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			created database.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.QueryType, &e.QueryParams, &e.ResultsCount, &e.ExecutionTime,
			&e.IPAddress, &e.UserAgent, &created); err != nil {
			logger.Error("RecentQueries: scan failed", err, nil)
			return nil, err
		}
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}
