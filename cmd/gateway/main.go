package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/config"
	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/handler"
	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
	"github.com/circulo/surplus-gateway-go/internal/infra/marketplace"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/infra/realtime"
	"github.com/circulo/surplus-gateway-go/internal/infra/resilience"
	"github.com/circulo/surplus-gateway-go/internal/infra/tokenstore"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("marketplace_api_url", cfg.MarketplaceAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("notify_interval", cfg.NotifyInterval),
		zap.Duration("delivery_tick", cfg.DeliveryTick),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "surplus-gateway")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,

		BreakerMinRequests:  uint32(cfg.BreakerMinRequests),
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerInterval:     cfg.BreakerInterval,
		BreakerTimeout:      cfg.BreakerTimeout,
	}
	cb := resilience.NewCircuitBreaker("marketplace-api", resilienceCfg)

	// --- Marketplace client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := marketplace.NewClient(httpClient, cfg.MarketplaceAPIURL, cb, resilienceCfg, logger)

	// --- Token stores ---
	durable := tokenstore.NewFile(cfg.TokenFile)
	ephemeral := tokenstore.NewMemory()

	// --- Services ---
	sessions := service.NewSessionManager(api, durable, ephemeral, cfg.JWTSecret, metrics, logger)
	catalog := service.NewCatalogService(api, metrics, logger)
	trade := service.NewTradeService(api, catalog, metrics, logger)

	source := realtime.NewTickerSource(cfg.NotifyInterval)
	notify := service.NewDispatcher(api, source, metrics, logger)
	notify.Start()

	delivery := service.NewDeliveryService(trade, notify, cfg.DeliveryTick, logger)

	companyCache := cache.NewTTL[*domain.Company](cfg.CacheTTL)
	impact := service.NewImpactService(api, catalog, trade, companyCache, metrics, logger)

	// Any 401/403 from the collaborator ends the session on the spot.
	api.OnAuthFailure(sessions.ClearAuth)

	// Session teardown stops everything scoped to the user.
	sessions.OnLogout(delivery.StopAllFor)
	sessions.OnLogout(trade.DropView)
	sessions.OnLogout(notify.DropFeed)

	// Resolve "remember me" tokens from the previous run.
	sessions.Restore(context.Background())

	// --- Cache refresher ---
	var refresher *service.Refresher
	if cfg.RefreshSpec != "" {
		refresher = service.NewRefresher(sessions, catalog, trade, cfg.RefreshSpec, logger)
		if err := refresher.Start(); err != nil {
			logger.Fatal("invalid refresh spec", zap.String("spec", cfg.RefreshSpec), zap.Error(err))
		}
	}

	// --- Router ---
	router := handler.NewRouter(sessions, catalog, trade, notify, delivery, impact, metrics, cfg, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	if refresher != nil {
		refresher.Stop()
	}
	notify.Stop()

	logger.Info("server stopped")
}
