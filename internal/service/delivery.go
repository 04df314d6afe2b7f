package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var carriers = []string{"GreenFleet", "EcoTrans", "CircuLog"}

// DeliveryService simulates carrier progress for transactions in flight.
// One ticker exists per open tracking view and lives exactly as long as
// the view: stopping the view (or logging the user out) cancels the
// ticker, and a cancelled view can never mutate a cache again.
type DeliveryService struct {
	trade      *TradeService
	dispatcher *Dispatcher
	tick       time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	rnd   *rand.Rand
	views map[int64]*trackingView // by transaction id
}

type trackingView struct {
	ownerID int64
	token   string
	cancel  context.CancelFunc
	status  domain.DeliveryStatus
}

// NewDeliveryService creates the tracker.
func NewDeliveryService(trade *TradeService, dispatcher *Dispatcher, tick time.Duration, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		trade:      trade,
		dispatcher: dispatcher,
		tick:       tick,
		logger:     logger,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		views:      make(map[int64]*trackingView),
	}
}

// Start opens a tracking view for an accepted transaction and begins the
// progress ticker. Starting an already-tracked transaction returns the
// existing status.
func (s *DeliveryService) Start(token string, user *domain.User, transactionID int64) (domain.DeliveryStatus, error) {
	t, ok := s.trade.Get(user.ID, transactionID)
	if !ok {
		return domain.DeliveryStatus{}, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	if t.Status != domain.TransactionAccepted && t.Status != domain.TransactionInTransit {
		return domain.DeliveryStatus{}, &domain.ErrInvalidTransition{Current: t.Status, Attempted: domain.TransactionInTransit}
	}

	s.mu.Lock()
	if view, tracked := s.views[transactionID]; tracked {
		status := view.status
		s.mu.Unlock()
		return status, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	view := &trackingView{
		ownerID: user.ID,
		token:   token,
		cancel:  cancel,
		status: domain.DeliveryStatus{
			TransactionID: transactionID,
			Carrier:       carriers[s.rnd.Intn(len(carriers))],
			TrackingID:    uuid.NewString(),
			UpdatedAt:     time.Now(),
		},
	}
	s.views[transactionID] = view
	s.mu.Unlock()

	go s.run(ctx, view)

	s.logger.Info("delivery tracking started",
		zap.Int64("transaction_id", transactionID),
		zap.String("carrier", view.status.Carrier),
	)
	return view.status, nil
}

// run advances progress on each tick until delivery completes or the view
// is closed. A tick re-checks registration around the upstream call and
// the trade commit is gated on the view context, so a tick racing a Stop
// never touches state after the view is gone.
func (s *DeliveryService) run(ctx context.Context, view *trackingView) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.step(ctx, view); done {
				return
			}
		}
	}
}

func (s *DeliveryService) step(ctx context.Context, view *trackingView) bool {
	s.mu.Lock()
	registered, ok := s.views[view.status.TransactionID]
	if !ok || registered != view {
		s.mu.Unlock()
		return true
	}
	step := 5 + s.rnd.Intn(16)
	view.status.Progress += step
	if view.status.Progress > 100 {
		view.status.Progress = 100
	}
	view.status.UpdatedAt = time.Now()
	status := view.status
	s.mu.Unlock()

	if _, err := s.trade.Advance(ctx, view.token, view.ownerID, status.TransactionID, status.Progress); err != nil {
		// A cancelled view context means Stop won the race; the advance
		// was already dropped without committing.
		if ctx.Err() != nil {
			return true
		}
		s.logger.Warn("delivery: advance failed, closing view",
			zap.Int64("transaction_id", status.TransactionID),
			zap.Error(err),
		)
		s.Stop(status.TransactionID)
		return true
	}

	// Re-check registration after the advance: a Stop landing while the
	// upstream call was in flight closed the view, and a closed view must
	// not push into the feed.
	s.mu.Lock()
	registered, ok = s.views[view.status.TransactionID]
	s.mu.Unlock()
	if !ok || registered != view {
		return true
	}

	s.dispatcher.Feed(view.ownerID).Push(domain.Notification{
		ID:        -time.Now().UnixNano(),
		UserID:    view.ownerID,
		Type:      domain.NotifyDeliveryUpdate,
		Priority:  "normal",
		Title:     "Delivery progress",
		Message:   status.Carrier + " reports the shipment moving",
		CreatedAt: status.UpdatedAt,
	})

	if status.Progress >= 100 {
		s.logger.Info("delivery completed", zap.Int64("transaction_id", status.TransactionID))
		s.Stop(status.TransactionID)
		return true
	}
	return false
}

// Status returns the current progress of a tracking view.
func (s *DeliveryService) Status(transactionID int64) (domain.DeliveryStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.views[transactionID]
	if !ok {
		return domain.DeliveryStatus{}, false
	}
	return view.status, true
}

// Stop closes a tracking view and cancels its ticker. Idempotent.
func (s *DeliveryService) Stop(transactionID int64) {
	s.mu.Lock()
	view, ok := s.views[transactionID]
	delete(s.views, transactionID)
	s.mu.Unlock()

	if ok {
		view.cancel()
	}
}

// StopAllFor closes every tracking view owned by a user. Wired to the
// session manager's logout hook.
func (s *DeliveryService) StopAllFor(userID int64) {
	s.mu.Lock()
	var cancelled []*trackingView
	for id, view := range s.views {
		if view.ownerID == userID {
			cancelled = append(cancelled, view)
			delete(s.views, id)
		}
	}
	s.mu.Unlock()

	for _, view := range cancelled {
		view.cancel()
	}
	if len(cancelled) > 0 {
		s.logger.Info("delivery tracking stopped on logout",
			zap.Int64("user_id", userID),
			zap.Int("views", len(cancelled)),
		)
	}
}
