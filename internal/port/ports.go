// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the concrete marketplace REST client and stores.
package port

import (
	"context"

	"github.com/circulo/surplus-gateway-go/internal/domain"
)

// AuthAPI is the slice of the marketplace collaborator that resolves
// identity. Authenticate exchanges credentials for a bearer token; Account
// resolves the token into a user snapshot.
type AuthAPI interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (string, error)
	Account(ctx context.Context, token string) (*domain.User, error)
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
}

// ProductAPI is the catalog slice of the marketplace collaborator.
type ProductAPI interface {
	ListProducts(ctx context.Context, token string, criteria domain.ListCriteria) ([]domain.Product, error)
	CreateProduct(ctx context.Context, token string, p *domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, token string, id int64, patch map[string]any) (*domain.Product, error)
	DeleteProduct(ctx context.Context, token string, id int64) error
}

// TransactionAPI is the trade slice of the marketplace collaborator,
// including the action endpoints.
type TransactionAPI interface {
	ListTransactions(ctx context.Context, token string, criteria domain.ListCriteria) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, token string, t *domain.Transaction) (*domain.Transaction, error)
	AcceptTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error)
	RejectTransaction(ctx context.Context, token string, id int64, reason string) (*domain.Transaction, error)
	CompleteTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, token string, id int64) (*domain.Transaction, error)
}

// NotificationAPI is the notification slice of the marketplace collaborator.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, token string) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, token string) (int, error)
	MarkNotificationRead(ctx context.Context, token string, id int64) error
	MarkAllNotificationsRead(ctx context.Context, token string) error
	DeleteNotification(ctx context.Context, token string, id int64) error
}

// CompanyAPI resolves organizational profiles and their impact stats.
type CompanyAPI interface {
	GetCompany(ctx context.Context, token string, id int64) (*domain.Company, error)
}

// TokenStore persists bearer tokens across restarts. The durable
// implementation is file-backed ("remember me"); the ephemeral one lives in
// process memory and is gone when it exits.
type TokenStore interface {
	Save(token string) error
	Delete(token string) error
	List() ([]string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// NotificationSource is where asynchronous events come from. The ticker
// generator is one implementation; a genuine server-push channel can be
// swapped in without touching the dispatcher.
type NotificationSource interface {
	Subscribe(ctx context.Context) <-chan domain.Notification
}
