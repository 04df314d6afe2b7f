package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// authenticateResponse is the token envelope of POST /authenticate.
type authenticateResponse struct {
	IDToken string `json:"id_token"`
}

// Authenticate exchanges credentials for a bearer token.
// Implements port.AuthAPI.
func (c *Client) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("auth.username", creds.Username))

	raw, err := c.send(ctx, "", http.MethodPost, "/authenticate", map[string]any{
		"username":   creds.Username,
		"password":   creds.Password,
		"rememberMe": creds.RememberMe,
	})
	if err != nil {
		return "", err
	}

	var resp authenticateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.IDToken == "" {
		return "", &domain.ErrAuthentication{Message: "no token in response"}
	}
	return resp.IDToken, nil
}

// Account resolves the bearer token into the user snapshot.
func (c *Client) Account(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.Account")
	defer span.End()

	raw, err := c.get(ctx, token, "/account")
	if err != nil {
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &user, nil
}

// Register creates a new marketplace account.
func (c *Client) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.Register")
	defer span.End()

	raw, err := c.send(ctx, "", http.MethodPost, "/register", req)
	if err != nil {
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode registered user: %w", err)
	}
	return &user, nil
}
