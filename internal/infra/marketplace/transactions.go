package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ListTransactions fetches the caller's transactions.
// Implements port.TransactionAPI.
func (c *Client) ListTransactions(ctx context.Context, token string, criteria domain.ListCriteria) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.ListTransactions")
	defer span.End()

	raw, err := c.get(ctx, token, "/transactions"+criteriaQuery(criteria))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []domain.Transaction{}, nil
	}

	var transactions []domain.Transaction
	if err := json.Unmarshal(raw, &transactions); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return transactions, nil
}

// CreateTransaction registers a buyer's interest in a listing.
func (c *Client) CreateTransaction(ctx context.Context, token string, t *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.CreateTransaction")
	defer span.End()

	raw, err := c.send(ctx, token, http.MethodPost, "/transactions", t)
	if err != nil {
		return nil, err
	}

	var created domain.Transaction
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decode created transaction: %w", err)
	}
	return &created, nil
}

// action invokes one of the transaction action endpoints.
func (c *Client) action(ctx context.Context, token string, id int64, verb string, payload any) (*domain.Transaction, error) {
	raw, err := c.send(ctx, token, http.MethodPost, fmt.Sprintf("/transactions/%d/%s", id, verb), payload)
	if err != nil {
		return nil, err
	}

	var updated domain.Transaction
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("decode transaction after %s: %w", verb, err)
	}
	return &updated, nil
}

// AcceptTransaction confirms a pending transaction as the seller.
func (c *Client) AcceptTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.AcceptTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	return c.action(ctx, token, id, "accept", nil)
}

// RejectTransaction declines a pending transaction as the seller.
func (c *Client) RejectTransaction(ctx context.Context, token string, id int64, reason string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.RejectTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	var payload any
	if reason != "" {
		payload = map[string]string{"reason": reason}
	}
	return c.action(ctx, token, id, "reject", payload)
}

// CompleteTransaction marks delivery as finished.
func (c *Client) CompleteTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.CompleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	return c.action(ctx, token, id, "complete", nil)
}

// CancelTransaction aborts a non-terminal transaction.
func (c *Client) CancelTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.CancelTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	return c.action(ctx, token, id, "cancel", nil)
}
