package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var impactTracer = otel.Tracer("service/impact")

// ImpactReport combines a company profile with activity derived from the
// caller's cached views.
type ImpactReport struct {
	Company            *domain.Company `json:"company"`
	ActiveListings     int             `json:"activeListings"`
	OpenTransactions   int             `json:"openTransactions"`
	ClosedTransactions int             `json:"closedTransactions"`
}

// ImpactService resolves company profiles and impact statistics. Upstream
// stats are cumulative and must never regress; a lower value from the
// server is treated as a stale read and the higher cached one wins.
type ImpactService struct {
	api     port.CompanyAPI
	catalog *CatalogService
	trade   *TradeService
	cache   port.Cache[*domain.Company]
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	ceilings map[int64]domain.CompanyStats
}

// NewImpactService creates the company/impact service.
func NewImpactService(api port.CompanyAPI, catalog *CatalogService, trade *TradeService, cache port.Cache[*domain.Company], metrics *observability.Metrics, logger *zap.Logger) *ImpactService {
	return &ImpactService{
		api:      api,
		catalog:  catalog,
		trade:    trade,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		ceilings: make(map[int64]domain.CompanyStats),
	}
}

// GetCompany fetches a company profile through the TTL cache.
func (s *ImpactService) GetCompany(ctx context.Context, token string, id int64) (*domain.Company, error) {
	ctx, span := impactTracer.Start(ctx, "Impact.GetCompany")
	defer span.End()
	span.SetAttributes(attribute.Int64("company.id", id))

	key := companyKey(id)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("companies")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("companies")

	company, err := s.api.GetCompany(ctx, token, id)
	if err != nil {
		s.metrics.IncrUpstreamError("companies")
		return nil, err
	}

	company.Stats = s.clampStats(id, company.Stats)
	s.cache.Set(key, company)
	return company, nil
}

// GetImpact builds the impact report: the company profile, the user's
// listings and the user's transactions are fetched concurrently.
func (s *ImpactService) GetImpact(ctx context.Context, token string, user *domain.User, companyID int64) (*ImpactReport, error) {
	ctx, span := impactTracer.Start(ctx, "Impact.GetImpact")
	defer span.End()
	span.SetAttributes(attribute.Int64("company.id", companyID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("impact", time.Since(start))
	}()

	var (
		company      *domain.Company
		products     []domain.Product
		transactions []domain.Transaction
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := s.GetCompany(gCtx, token, companyID)
		if err != nil {
			return err
		}
		company = c
		return nil
	})
	g.Go(func() error {
		p, err := s.catalog.List(gCtx, token, domain.ListCriteria{})
		if err != nil {
			return err
		}
		products = p
		return nil
	})
	g.Go(func() error {
		t, err := s.trade.List(gCtx, token, user.ID, domain.ListCriteria{})
		if err != nil {
			return err
		}
		transactions = t
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &ImpactReport{Company: company}
	for _, p := range products {
		if p.CompanyID == companyID && p.Status == domain.ProductAvailable {
			report.ActiveListings++
		}
	}
	for _, t := range transactions {
		if t.SellerCompanyID != companyID && t.BuyerCompanyID != companyID {
			continue
		}
		if t.Terminal() {
			report.ClosedTransactions++
		} else {
			report.OpenTransactions++
		}
	}
	return report, nil
}

// clampStats enforces the monotonic invariant on cumulative figures.
func (s *ImpactService) clampStats(id int64, incoming domain.CompanyStats) domain.CompanyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceiling := s.ceilings[id]
	if incoming.SurplusCount < ceiling.SurplusCount {
		incoming.SurplusCount = ceiling.SurplusCount
	}
	if incoming.Donations < ceiling.Donations {
		incoming.Donations = ceiling.Donations
	}
	if incoming.CO2SavedKg < ceiling.CO2SavedKg {
		incoming.CO2SavedKg = ceiling.CO2SavedKg
	}
	if incoming.WasteReducedKg < ceiling.WasteReducedKg {
		incoming.WasteReducedKg = ceiling.WasteReducedKg
	}
	s.ceilings[id] = incoming
	return incoming
}

func companyKey(id int64) string {
	return "company:" + strconv.FormatInt(id, 10)
}
