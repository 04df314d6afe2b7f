package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ListProducts fetches a filtered, paginated page of surplus listings.
// Implements port.ProductAPI.
func (c *Client) ListProducts(ctx context.Context, token string, criteria domain.ListCriteria) ([]domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.ListProducts")
	defer span.End()

	raw, err := c.get(ctx, token, "/products"+criteriaQuery(criteria))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []domain.Product{}, nil
	}

	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// CreateProduct submits a new listing.
func (c *Client) CreateProduct(ctx context.Context, token string, p *domain.Product) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.CreateProduct")
	defer span.End()

	raw, err := c.send(ctx, token, http.MethodPost, "/products", p)
	if err != nil {
		return nil, err
	}

	var created domain.Product
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decode created product: %w", err)
	}
	return &created, nil
}

// UpdateProduct patches an existing listing.
func (c *Client) UpdateProduct(ctx context.Context, token string, id int64, patch map[string]any) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.UpdateProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", id))

	raw, err := c.send(ctx, token, http.MethodPatch, fmt.Sprintf("/products/%d", id), patch)
	if err != nil {
		return nil, err
	}

	var updated domain.Product
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("decode updated product: %w", err)
	}
	return &updated, nil
}

// DeleteProduct removes a listing upstream.
func (c *Client) DeleteProduct(ctx context.Context, token string, id int64) error {
	ctx, span := tracer.Start(ctx, "Marketplace.DeleteProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", id))

	_, err := c.send(ctx, token, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil)
	return err
}
