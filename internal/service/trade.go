package service

import (
	"context"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tradeTracer = otel.Tracer("service/trade")

// TradeService owns transaction state. Status changes go through the
// domain transition table; an attempt from a non-source state is rejected
// with a typed error, never silently applied. Accept/reject also mirror
// the linked product's status into the catalog before returning. The two
// caches are independent, so this service is the one place holding the
// two-entity invariant.
type TradeService struct {
	api     port.TransactionAPI
	catalog *CatalogService
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	views map[int64]*cache.Collection[domain.Transaction] // per user
}

// NewTradeService creates the transaction service on top of the catalog.
func NewTradeService(api port.TransactionAPI, catalog *CatalogService, metrics *observability.Metrics, logger *zap.Logger) *TradeService {
	return &TradeService{
		api:     api,
		catalog: catalog,
		metrics: metrics,
		logger:  logger,
		views:   make(map[int64]*cache.Collection[domain.Transaction]),
	}
}

// view returns the per-user transaction collection, creating it lazily.
func (s *TradeService) view(userID int64) *cache.Collection[domain.Transaction] {
	s.mu.RLock()
	v, ok := s.views[userID]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.views[userID]; ok {
		return v
	}
	v = cache.NewCollection(func(t domain.Transaction) int64 { return t.ID })
	s.views[userID] = v
	return v
}

// List fetches the user's transactions and replaces their cached view.
func (s *TradeService) List(ctx context.Context, token string, userID int64, criteria domain.ListCriteria) ([]domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.List")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("trade_list", time.Since(start))
	}()

	transactions, err := s.api.ListTransactions(ctx, token, criteria)
	if err != nil {
		s.metrics.IncrUpstreamError("transactions")
		return nil, err
	}

	s.view(userID).Replace(transactions)
	return transactions, nil
}

// Create expresses a buyer's interest in a listing. The new transaction
// starts PENDING and is prepended to the buyer's view once confirmed.
func (s *TradeService) Create(ctx context.Context, token string, user *domain.User, t *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.Create")
	defer span.End()

	if t.ProductID == 0 {
		return nil, &domain.ErrValidation{Field: "productId", Message: "productId is required"}
	}
	switch t.Type {
	case domain.TypeDonation, domain.TypeSale, domain.TypeRecycling:
	default:
		return nil, &domain.ErrValidation{Field: "type", Message: "unknown transaction type"}
	}

	if product, ok := s.catalog.Get(t.ProductID); ok {
		if product.Status != domain.ProductAvailable {
			return nil, &domain.ErrValidation{Field: "productId", Message: "listing is not available"}
		}
		t.SellerCompanyID = product.CompanyID
	}

	t.RequesterID = user.ID
	t.BuyerCompanyID = user.CompanyID
	t.Status = domain.TransactionPending

	created, err := s.api.CreateTransaction(ctx, token, t)
	if err != nil {
		s.metrics.IncrUpstreamError("transactions")
		return nil, err
	}

	s.view(user.ID).Prepend(*created)
	s.logger.Info("transaction created",
		zap.Int64("transaction_id", created.ID),
		zap.Int64("product_id", created.ProductID),
		zap.String("type", string(created.Type)),
	)
	return created, nil
}

// Get returns a transaction from the user's cached view.
func (s *TradeService) Get(userID, id int64) (domain.Transaction, bool) {
	return s.view(userID).Get(id)
}

// guardSeller verifies the acting user belongs to the selling company.
func guardSeller(user *domain.User, t *domain.Transaction) error {
	if user.CompanyID == 0 || user.CompanyID != t.SellerCompanyID {
		return &domain.ErrAuthorization{Action: "only the seller can decide on this transaction"}
	}
	return nil
}

// Accept confirms a PENDING transaction as the seller. On success both the
// transaction and the linked product (→ RESERVED) are updated locally
// before control returns, so no re-render can observe a partial state.
func (s *TradeService) Accept(ctx context.Context, token string, user *domain.User, id int64) (*domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.Accept")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	current, ok := s.view(user.ID).Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if err := guardSeller(user, &current); err != nil {
		s.metrics.IncrTransition(string(domain.TransactionAccepted), "denied")
		return nil, err
	}
	if _, err := domain.Transition(current.Status, domain.TransactionAccepted); err != nil {
		s.metrics.IncrTransition(string(domain.TransactionAccepted), "invalid")
		return nil, err
	}

	accepted, err := s.api.AcceptTransaction(ctx, token, id)
	if err != nil {
		s.metrics.IncrUpstreamError("transactions")
		return nil, err
	}
	if accepted.AcceptedAt == nil {
		now := time.Now()
		accepted.AcceptedAt = &now
	}
	accepted.Status = domain.TransactionAccepted

	s.applyLocal(user.ID, accepted)
	s.metrics.IncrTransition(string(domain.TransactionAccepted), "ok")
	s.logger.Info("transaction accepted",
		zap.Int64("transaction_id", id),
		zap.Int64("product_id", accepted.ProductID),
	)
	return accepted, nil
}

// Reject declines a PENDING transaction as the seller. The linked product
// goes back to AVAILABLE.
func (s *TradeService) Reject(ctx context.Context, token string, user *domain.User, id int64, reason string) (*domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.Reject")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	current, ok := s.view(user.ID).Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if err := guardSeller(user, &current); err != nil {
		s.metrics.IncrTransition(string(domain.TransactionCancelled), "denied")
		return nil, err
	}
	if current.Status != domain.TransactionPending {
		s.metrics.IncrTransition(string(domain.TransactionCancelled), "invalid")
		return nil, &domain.ErrInvalidTransition{Current: current.Status, Attempted: domain.TransactionCancelled}
	}

	rejected, err := s.api.RejectTransaction(ctx, token, id, reason)
	if err != nil {
		s.metrics.IncrUpstreamError("transactions")
		return nil, err
	}
	rejected.Status = domain.TransactionCancelled
	rejected.Reason = reason

	s.applyLocal(user.ID, rejected)
	s.metrics.IncrTransition(string(domain.TransactionCancelled), "ok")
	s.logger.Info("transaction rejected",
		zap.Int64("transaction_id", id),
		zap.String("reason", reason),
	)
	return rejected, nil
}

// guardBuyer verifies the acting user is on the buying side, either as the
// requester or through the buying company.
func guardBuyer(user *domain.User, t *domain.Transaction) error {
	if user.ID == t.RequesterID {
		return nil
	}
	if user.CompanyID != 0 && user.CompanyID == t.BuyerCompanyID {
		return nil
	}
	return &domain.ErrAuthorization{Action: "only the buyer can cancel this transaction"}
}

// Cancel withdraws a transaction as the buyer. The transition table allows
// it from any non-terminal state; the linked product goes back to
// AVAILABLE.
func (s *TradeService) Cancel(ctx context.Context, token string, user *domain.User, id int64) (*domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.Cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	current, ok := s.view(user.ID).Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if err := guardBuyer(user, &current); err != nil {
		s.metrics.IncrTransition(string(domain.TransactionCancelled), "denied")
		return nil, err
	}
	if _, err := domain.Transition(current.Status, domain.TransactionCancelled); err != nil {
		s.metrics.IncrTransition(string(domain.TransactionCancelled), "invalid")
		return nil, err
	}

	cancelled, err := s.api.CancelTransaction(ctx, token, id)
	if err != nil {
		s.metrics.IncrUpstreamError("transactions")
		return nil, err
	}
	cancelled.Status = domain.TransactionCancelled

	s.applyLocal(user.ID, cancelled)
	s.metrics.IncrTransition(string(domain.TransactionCancelled), "ok")
	s.logger.Info("transaction cancelled",
		zap.Int64("transaction_id", id),
		zap.Int64("product_id", cancelled.ProductID),
	)
	return cancelled, nil
}

// Advance moves an in-flight transaction along with carrier progress:
// first movement flips ACCEPTED → IN_TRANSIT, reaching 100% completes it
// upstream and locally. Called by the delivery tracker.
func (s *TradeService) Advance(ctx context.Context, token string, userID, id int64, progress int) (*domain.Transaction, error) {
	ctx, span := tradeTracer.Start(ctx, "Trade.Advance")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id), attribute.Int("progress", progress))

	current, ok := s.view(userID).Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	switch {
	case progress >= 100:
		if _, err := domain.Transition(current.Status, domain.TransactionCompleted); err != nil {
			s.metrics.IncrTransition(string(domain.TransactionCompleted), "invalid")
			return nil, err
		}
		completed, err := s.api.CompleteTransaction(ctx, token, id)
		if err != nil {
			s.metrics.IncrUpstreamError("transactions")
			return nil, err
		}
		// The tracking view may have been closed while the upstream call
		// was in flight. A cancelled context must not commit to the
		// caches; the next list re-syncs from the upstream.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		completed.Status = domain.TransactionCompleted
		if completed.CompletedAt == nil {
			now := time.Now()
			completed.CompletedAt = &now
		}
		s.applyLocal(userID, completed)
		s.metrics.IncrTransition(string(domain.TransactionCompleted), "ok")
		return completed, nil

	case current.Status == domain.TransactionAccepted:
		if _, err := domain.Transition(current.Status, domain.TransactionInTransit); err != nil {
			s.metrics.IncrTransition(string(domain.TransactionInTransit), "invalid")
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current.Status = domain.TransactionInTransit
		s.applyLocal(userID, &current)
		s.metrics.IncrTransition(string(domain.TransactionInTransit), "ok")
		return &current, nil

	default:
		// Already IN_TRANSIT and not finished: nothing to transition.
		return &current, nil
	}
}

// applyLocal commits a confirmed transaction state and the matching
// product status into the caches, back to back, before returning to the
// caller. Single-threaded callers never see one without the other.
func (s *TradeService) applyLocal(userID int64, t *domain.Transaction) {
	s.view(userID).Upsert(*t)
	if status, ok := domain.ProductStatusFor(t.Status); ok {
		s.catalog.setLocalStatus(t.ProductID, status)
	}
}

// DropView discards a user's cached transactions. Called on logout.
func (s *TradeService) DropView(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, userID)
}
