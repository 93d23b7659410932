package domain

import (
	"time"
)

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	SKU           *string   `json:"sku,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Populated from the analytics service, never stored.
	Performance *Performance `json:"performance,omitempty"`
}

// Performance is the sales summary the analytics service reports for one product.
type Performance struct {
	Revenue   float64 `json:"revenue"`
	UnitsSold int     `json:"units_sold"`
}

type CreateProductRequest struct {
	Name          string  `json:"name" binding:"required,max=200"`
	Category      string  `json:"category" binding:"required,max=100"`
	Description   string  `json:"description" binding:"max=2000"`
	Price         float64 `json:"price" binding:"required,gt=0"`
	StockQuantity int     `json:"stock_quantity" binding:"gte=0"`
	SKU           *string `json:"sku" binding:"omitempty,max=64"`
}

type UpdateProductRequest struct {
	Name          *string  `json:"name" binding:"omitempty,min=1,max=200"`
	Category      *string  `json:"category" binding:"omitempty,min=1,max=100"`
	Description   *string  `json:"description" binding:"omitempty,max=2000"`
	Price         *float64 `json:"price" binding:"omitempty,gt=0"`
	StockQuantity *int     `json:"stock_quantity" binding:"omitempty,gte=0"`
	SKU           *string  `json:"sku" binding:"omitempty,max=64"`
}
