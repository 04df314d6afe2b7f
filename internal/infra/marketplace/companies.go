package marketplace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// GetCompany fetches an organizational profile with its impact stats.
// Implements port.CompanyAPI.
func (c *Client) GetCompany(ctx context.Context, token string, id int64) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.GetCompany")
	defer span.End()
	span.SetAttributes(attribute.Int64("company.id", id))

	raw, err := c.get(ctx, token, fmt.Sprintf("/companies/%d", id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}

	var company domain.Company
	if err := json.Unmarshal(raw, &company); err != nil {
		return nil, fmt.Errorf("decode company: %w", err)
	}
	return &company, nil
}
