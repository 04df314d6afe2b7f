package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var catalogTracer = otel.Tracer("service/catalog")

// CatalogService holds the marketplace-wide view of surplus listings.
// Mutations are optimistic: the local collection changes only after the
// upstream confirmed, so a rejected call leaves the cache untouched.
type CatalogService struct {
	api      port.ProductAPI
	products *cache.Collection[domain.Product]
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu           sync.Mutex
	lastCriteria domain.ListCriteria
}

// NewCatalogService creates the product cache service.
func NewCatalogService(api port.ProductAPI, metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		api:      api,
		products: cache.NewCollection(func(p domain.Product) int64 { return p.ID }),
		metrics:  metrics,
		logger:   logger,
	}
}

// List fetches a filtered page of listings and replaces the cached view
// with it. The criteria are remembered for interval refresh.
func (s *CatalogService) List(ctx context.Context, token string, criteria domain.ListCriteria) ([]domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.List")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("catalog_list", time.Since(start))
	}()

	products, err := s.api.ListProducts(ctx, token, criteria)
	if err != nil {
		s.metrics.IncrUpstreamError("products")
		var authn *domain.ErrAuthentication
		var authz *domain.ErrAuthorization
		if errors.As(err, &authn) || errors.As(err, &authz) {
			return nil, err
		}
		// Serve the stale view when the criteria match the last
		// successful fetch; a network blip should not blank the screen.
		s.mu.Lock()
		same := criteria == s.lastCriteria
		s.mu.Unlock()
		if same && s.products.Len() > 0 {
			s.metrics.IncrCacheHit("products")
			return s.products.Snapshot(), nil
		}
		s.metrics.IncrCacheMiss("products")
		return nil, err
	}

	s.products.Replace(products)
	s.mu.Lock()
	s.lastCriteria = criteria
	s.mu.Unlock()

	return products, nil
}

// Create submits a new listing and prepends it to the cached view after
// the upstream confirmed it.
func (s *CatalogService) Create(ctx context.Context, token string, p *domain.Product) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Create")
	defer span.End()

	if p.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "title is required"}
	}
	if p.Category == "" {
		return nil, &domain.ErrValidation{Field: "category", Message: "category is required"}
	}
	if p.Quantity <= 0 {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "quantity must be positive"}
	}
	if p.SalePrice < 0 {
		return nil, &domain.ErrValidation{Field: "salePrice", Message: "price cannot be negative"}
	}
	if p.Status == "" {
		p.Status = domain.ProductAvailable
	}

	created, err := s.api.CreateProduct(ctx, token, p)
	if err != nil {
		s.metrics.IncrUpstreamError("products")
		return nil, err
	}

	s.products.Prepend(*created)
	s.logger.Info("listing created",
		zap.Int64("product_id", created.ID),
		zap.String("category", created.Category),
	)
	return created, nil
}

// Update patches a listing and merges the confirmed result into the cache
// by id, preserving order.
func (s *CatalogService) Update(ctx context.Context, token string, id int64, patch map[string]any) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Update")
	defer span.End()

	updated, err := s.api.UpdateProduct(ctx, token, id, patch)
	if err != nil {
		s.metrics.IncrUpstreamError("products")
		return nil, err
	}

	s.products.Upsert(*updated)
	return updated, nil
}

// Remove deletes a listing upstream then drops it from the cache.
func (s *CatalogService) Remove(ctx context.Context, token string, id int64) error {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Remove")
	defer span.End()

	if err := s.api.DeleteProduct(ctx, token, id); err != nil {
		s.metrics.IncrUpstreamError("products")
		return err
	}

	s.products.Remove(id)
	return nil
}

// Get returns a listing from the cached view.
func (s *CatalogService) Get(id int64) (domain.Product, bool) {
	return s.products.Get(id)
}

// setLocalStatus mirrors a transaction-driven status change into the
// cached listing without an upstream round-trip. The trade service calls
// this as the second half of its two-entity invariant.
func (s *CatalogService) setLocalStatus(id int64, status domain.ProductStatus) {
	s.products.Update(id, func(p *domain.Product) {
		p.Status = status
	})
}

// Refresh re-runs the last fetch so the cached view follows upstream
// changes. Driven by the cron refresher.
func (s *CatalogService) Refresh(ctx context.Context, token string) error {
	s.mu.Lock()
	criteria := s.lastCriteria
	s.mu.Unlock()

	products, err := s.api.ListProducts(ctx, token, criteria)
	if err != nil {
		return err
	}
	s.products.Replace(products)
	return nil
}
