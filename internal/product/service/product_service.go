package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
	"github.com/ridloal/retail-analytics-engine/internal/product/domain"
	"github.com/ridloal/retail-analytics-engine/internal/product/repository"
	"golang.org/x/sync/errgroup"
)

// maxEnrichConcurrency bounds the concurrent analytics lookups of one listing.
const maxEnrichConcurrency = 8

var ErrInvalidProduct = errors.New("invalid product data")

type ProductService interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProductDetails(ctx context.Context, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error)
	UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

type productServiceImpl struct {
	repo      repository.ProductRepository
	analytics AnalyticsClient
	metrics   *metrics.Registry
}

func NewProductService(repo repository.ProductRepository, analytics AnalyticsClient, m *metrics.Registry) ProductService {
	return &productServiceImpl{
		repo:      repo,
		analytics: analytics,
		metrics:   m,
	}
}

func (s *productServiceImpl) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, products)
	return products, nil
}

// enrich fans out one analytics lookup per product. Failures are logged and
// leave that product's performance empty.
func (s *productServiceImpl) enrich(ctx context.Context, products []domain.Product) {
	if s.analytics == nil || len(products) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxEnrichConcurrency)
	for i := range products {
		g.Go(func() error {
			perf, err := s.analytics.GetProductPerformance(ctx, products[i].ID)
			if err != nil {
				logger.Error("ListProducts: failed to get performance for product "+products[i].ID, err)
				return nil
			}
			// Each goroutine writes only its own element.
			products[i].Performance = perf
			return nil
		})
	}
	_ = g.Wait()
}

func (s *productServiceImpl) GetProductDetails(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ProductViews.Inc()
	}

	if s.analytics != nil {
		perf, err := s.analytics.GetProductPerformance(ctx, productID)
		if err != nil {
			logger.Error("GetProductDetails: failed to get performance for product "+productID, err)
		} else {
			product.Performance = perf
		}
	}
	return product, nil
}

func clean(s string) string {
	return strings.TrimSpace(security.SanitizeInput(s))
}

// cleanSKU maps a blank SKU to none.
func cleanSKU(s string) *string {
	sku := clean(s)
	if sku == "" {
		return nil
	}
	return &sku
}

func (s *productServiceImpl) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	p := &domain.Product{
		Name:          clean(req.Name),
		Category:      clean(req.Category),
		Description:   clean(req.Description),
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	}
	if req.SKU != nil {
		p.SKU = cleanSKU(*req.SKU)
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, repository.ErrSKUConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("could not save product: %w", err)
	}
	logger.Info("Product %s created in category %s", p.ID, p.Category)
	return p, nil
}

func (s *productServiceImpl) UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	p, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = clean(*req.Name)
	}
	if req.Category != nil {
		p.Category = clean(*req.Category)
	}
	if req.Description != nil {
		p.Description = clean(*req.Description)
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.StockQuantity != nil {
		p.StockQuantity = *req.StockQuantity
	}
	if req.SKU != nil {
		p.SKU = cleanSKU(*req.SKU)
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, repository.ErrSKUConflict) || errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("could not update product: %w", err)
	}
	return p, nil
}

func (s *productServiceImpl) DeleteProduct(ctx context.Context, productID string) error {
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("could not delete product: %w", err)
	}
	logger.Info("Product %s deleted", productID)
	return nil
}

func validate(p *domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	case p.Price <= 0:
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidProduct)
	case p.StockQuantity < 0:
		return fmt.Errorf("%w: stock quantity cannot be negative", ErrInvalidProduct)
	}
	return nil
}
