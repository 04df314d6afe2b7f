package service

import (
	"context"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher periodically re-fetches the cached views for every active
// session so the gateway's state follows upstream changes between user
// actions. Failures are logged and retried on the next run; the stale
// view stays served in the meantime.
type Refresher struct {
	sessions *SessionManager
	catalog  *CatalogService
	trade    *TradeService
	logger   *zap.Logger

	cron *cron.Cron
	spec string
}

// NewRefresher creates the refresher with a cron spec such as "@every 2m".
func NewRefresher(sessions *SessionManager, catalog *CatalogService, trade *TradeService, spec string, logger *zap.Logger) *Refresher {
	return &Refresher{
		sessions: sessions,
		catalog:  catalog,
		trade:    trade,
		logger:   logger,
		cron:     cron.New(),
		spec:     spec,
	}
}

// Start schedules the refresh job. Returns an error only for an invalid
// spec.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.spec, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("cache refresher started", zap.String("spec", r.spec))
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Refresher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokens := r.sessions.ActiveTokens()
	if len(tokens) == 0 {
		return
	}

	// One session is enough to refresh the shared catalog view.
	if err := r.catalog.Refresh(ctx, tokens[0]); err != nil {
		r.logger.Warn("refresher: catalog refresh failed", zap.Error(err))
	}

	for _, token := range tokens {
		session, err := r.sessions.GetSession(ctx, token)
		if err != nil || session.User == nil {
			continue
		}
		if _, err := r.trade.List(ctx, token, session.User.ID, domain.ListCriteria{}); err != nil {
			r.logger.Warn("refresher: transaction refresh failed",
				zap.Int64("user_id", session.User.ID),
				zap.Error(err),
			)
		}
	}
}
