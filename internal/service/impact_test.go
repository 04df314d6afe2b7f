package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.uber.org/zap"
)

type mockCompanyAPI struct {
	company *domain.Company
	err     error
	calls   int
}

func (m *mockCompanyAPI) GetCompany(_ context.Context, _ string, id int64) (*domain.Company, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	c := *m.company
	c.ID = id
	return &c, nil
}

func newImpactFixture(t *testing.T, api *mockCompanyAPI) (*service.ImpactService, *service.TradeService) {
	t.Helper()
	trade, catalog, _ := newTradeFixture(t)
	companies := cache.NewTTL[*domain.Company](time.Minute)
	impact := service.NewImpactService(api, catalog, trade, companies, observability.NewMetrics(), zap.NewNop())
	return impact, trade
}

func TestGetCompany_UsesCache(t *testing.T) {
	api := &mockCompanyAPI{company: &domain.Company{Name: "GreenMill", Siret: "12345678900011"}}
	impact, _ := newImpactFixture(t, api)

	first, err := impact.GetCompany(context.Background(), "tok", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	api.err = errors.New("upstream down")
	second, err := impact.GetCompany(context.Background(), "tok", 1)
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if first != second {
		t.Error("second lookup should come from the cache")
	}
	if api.calls != 1 {
		t.Errorf("expected one upstream call, got %d", api.calls)
	}
}

func TestGetCompany_StatsNeverRegress(t *testing.T) {
	api := &mockCompanyAPI{company: &domain.Company{
		Name:  "GreenMill",
		Stats: domain.CompanyStats{SurplusCount: 12, Donations: 4, CO2SavedKg: 320.5, WasteReducedKg: 1400},
	}}
	companies := cache.NewTTL[*domain.Company](time.Nanosecond)
	trade, catalog, _ := newTradeFixture(t)
	impact := service.NewImpactService(api, catalog, trade, companies, observability.NewMetrics(), zap.NewNop())

	if _, err := impact.GetCompany(context.Background(), "tok", 1); err != nil {
		t.Fatal(err)
	}

	// A stale replica answers with lower cumulative figures.
	api.company.Stats = domain.CompanyStats{SurplusCount: 9, Donations: 4, CO2SavedKg: 250, WasteReducedKg: 1400}
	time.Sleep(time.Millisecond)

	company, err := impact.GetCompany(context.Background(), "tok", 1)
	if err != nil {
		t.Fatal(err)
	}
	if company.Stats.SurplusCount != 12 || company.Stats.CO2SavedKg != 320.5 {
		t.Errorf("cumulative stats must not regress: %+v", company.Stats)
	}
}

func TestGetImpact_CountsFromCachedViews(t *testing.T) {
	api := &mockCompanyAPI{company: &domain.Company{Name: "GreenMill"}}
	impact, trade := newImpactFixture(t, api)

	// Fixture: company 1 has one AVAILABLE listing (101) and one open
	// PENDING transaction (500). Close the transaction and recount.
	report, err := impact.GetImpact(context.Background(), "tok", seller, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ActiveListings != 1 {
		t.Errorf("activeListings = %d", report.ActiveListings)
	}
	if report.OpenTransactions != 1 || report.ClosedTransactions != 0 {
		t.Errorf("open/closed = %d/%d", report.OpenTransactions, report.ClosedTransactions)
	}

	if _, err := trade.Reject(context.Background(), "tok", seller, 500, "no capacity"); err != nil {
		t.Fatal(err)
	}

	report, err = impact.GetImpact(context.Background(), "tok", seller, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OpenTransactions != 0 || report.ClosedTransactions != 1 {
		t.Errorf("open/closed after reject = %d/%d", report.OpenTransactions, report.ClosedTransactions)
	}
}

func TestGetImpact_PropagatesUpstreamFailure(t *testing.T) {
	api := &mockCompanyAPI{err: &domain.ErrNotFound{Resource: "company", ID: 42}}
	impact, _ := newImpactFixture(t, api)

	_, err := impact.GetImpact(context.Background(), "tok", seller, 42)
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
