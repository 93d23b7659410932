package domain

import (
	"time"
)

// Query types accepted by POST /analytics/query.
const (
	QueryProductPerformance = "product_performance"
	QueryCategoryAnalysis   = "category_analysis"
	QueryTrendPrediction    = "trend_prediction"
	QueryCustomerInsights   = "customer_insights"
)

var QueryTypes = []string{
	QueryProductPerformance,
	QueryCategoryAnalysis,
	QueryTrendPrediction,
	QueryCustomerInsights,
}

// Customer segments, from most to least engaged.
const (
	SegmentLoyalChampion     = "LOYAL_CHAMPION"
	SegmentSatisfiedCustomer = "SATISFIED_CUSTOMER"
	SegmentNeutralCustomer   = "NEUTRAL_CUSTOMER"
	SegmentAtRiskCustomer    = "AT_RISK_CUSTOMER"
)

type CategorySummary struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
	Growth  float64 `json:"growth"`
}

// Overview holds the headline figures of the dashboard.
type Overview struct {
	TotalProducts  int     `json:"total_products"`
	TotalRevenue   float64 `json:"total_revenue"`
	ActiveUsers    int     `json:"active_users"`
	ConversionRate float64 `json:"conversion_rate"`
}

type DashboardData struct {
	TotalProducts  int               `json:"total_products"`
	TotalRevenue   float64           `json:"total_revenue"`
	ActiveUsers    int               `json:"active_users"`
	ConversionRate float64           `json:"conversion_rate"`
	TopCategories  []CategorySummary `json:"top_categories"`
	RecentInsights []string          `json:"recent_insights"`
}

// Clone returns a deep copy so callers cannot mutate shared snapshots.
func (d *DashboardData) Clone() *DashboardData {
	if d == nil {
		return nil
	}
	c := *d
	c.TopCategories = append([]CategorySummary(nil), d.TopCategories...)
	c.RecentInsights = append([]string(nil), d.RecentInsights...)
	return &c
}

type ProductPerformance struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Revenue   float64 `json:"revenue"`
	UnitsSold int     `json:"units_sold"`
}

type CategoryAnalysis struct {
	Category     string  `json:"category"`
	TotalRevenue float64 `json:"total_revenue"`
	Products     int     `json:"products"`
	AvgPrice     float64 `json:"avg_price"`
}

// CategoryRollup is the per-category entry of the demo category endpoint.
type CategoryRollup struct {
	TotalRevenue float64 `json:"total_revenue"`
	Products     int     `json:"products"`
	AvgPrice     float64 `json:"avg_price"`
}

// DemoProduct is a row of the demo product listing, which serves numeric ids.
type DemoProduct struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Revenue   float64 `json:"revenue"`
	UnitsSold int     `json:"units_sold"`
}

type TrendPoint struct {
	Period    string  `json:"period"` // YYYY-MM
	Revenue   float64 `json:"revenue"`
	Projected bool    `json:"projected"`
}

type TrendForecast struct {
	History     []TrendPoint `json:"history"`
	Projection  []TrendPoint `json:"projection"`
	Slope       float64      `json:"slope"`
	Intercept   float64      `json:"intercept"`
	GrowthTrend string       `json:"growth_trend"` // growing, declining or flat
}

// MonthlyRevenue is one calendar month of recorded revenue.
type MonthlyRevenue struct {
	Month   time.Time
	Revenue float64
}

// CustomerStats aggregates the purchases of one customer.
type CustomerStats struct {
	CustomerID   string
	Orders       int
	TotalSpent   float64
	LastPurchase time.Time
}

type CustomerSegment struct {
	Segment       string  `json:"segment"`
	Customers     int     `json:"customers"`
	TotalRevenue  float64 `json:"total_revenue"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

type QueryRequest struct {
	QueryType  string                 `json:"query_type" binding:"required"`
	Parameters map[string]interface{} `json:"parameters"`
}

type QueryResult struct {
	QueryType     string      `json:"query_type"`
	Results       interface{} `json:"results"`
	ExecutionTime float64     `json:"execution_time"`
}

// Caller identifies who issued a request, for auditing.
type Caller struct {
	Subject   string
	IP        string
	UserAgent string
}

type AuditEntry struct {
	ID            string    `json:"id" bigquery:"id"`
	UserID        string    `json:"user_id" bigquery:"user_id"`
	QueryType     string    `json:"query_type" bigquery:"query_type"`
	QueryParams   string    `json:"query_params" bigquery:"query_params"`
	ResultsCount  int       `json:"results_count" bigquery:"results_count"`
	ExecutionTime float64   `json:"execution_time" bigquery:"execution_time"`
	IPAddress     string    `json:"ip_address" bigquery:"ip_address"`
	UserAgent     string    `json:"user_agent" bigquery:"user_agent"`
	CreatedAt     time.Time `json:"created_at" bigquery:"created_at"`
}

// SaleRecord is one line of sales history.
type SaleRecord struct {
	ID          string    `bigquery:"id"`
	ProductID   string    `bigquery:"product_id"`
	ProductName string    `bigquery:"product_name"`
	Category    string    `bigquery:"category"`
	CustomerID  string    `bigquery:"customer_id"`
	Quantity    int       `bigquery:"quantity"`
	UnitPrice   float64   `bigquery:"unit_price"`
	SoldAt      time.Time `bigquery:"sold_at"`
	SourceFile  string    `bigquery:"source_file"`
}

type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportSummary struct {
	File     string     `json:"file"`
	Imported int        `json:"imported"`
	Rejected int        `json:"rejected"`
	Errors   []RowError `json:"errors,omitempty"`
}

type Recommendation struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Revenue    float64 `json:"revenue"`
	Similarity float64 `json:"similarity"`
}
