package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/config"
	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/handler"
	"github.com/circulo/surplus-gateway-go/internal/infra/cache"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/infra/tokenstore"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

// --- Port stubs ---

type stubAuthAPI struct {
	token string
	user  *domain.User
}

func (s *stubAuthAPI) Authenticate(_ context.Context, _ domain.Credentials) (string, error) {
	return s.token, nil
}

func (s *stubAuthAPI) Account(_ context.Context, _ string) (*domain.User, error) {
	return s.user, nil
}

func (s *stubAuthAPI) Register(_ context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	return &domain.User{ID: 99, Email: req.Email}, nil
}

type stubProductAPI struct {
	products []domain.Product
}

func (s *stubProductAPI) ListProducts(_ context.Context, _ string, _ domain.ListCriteria) ([]domain.Product, error) {
	return s.products, nil
}

func (s *stubProductAPI) CreateProduct(_ context.Context, _ string, p *domain.Product) (*domain.Product, error) {
	created := *p
	created.ID = 200
	return &created, nil
}

func (s *stubProductAPI) UpdateProduct(_ context.Context, _ string, id int64, _ map[string]any) (*domain.Product, error) {
	return &domain.Product{ID: id}, nil
}

func (s *stubProductAPI) DeleteProduct(_ context.Context, _ string, _ int64) error {
	return nil
}

type stubTransactionAPI struct {
	transactions []domain.Transaction
}

func (s *stubTransactionAPI) ListTransactions(_ context.Context, _ string, _ domain.ListCriteria) ([]domain.Transaction, error) {
	return s.transactions, nil
}

func (s *stubTransactionAPI) CreateTransaction(_ context.Context, _ string, t *domain.Transaction) (*domain.Transaction, error) {
	created := *t
	created.ID = 600
	return &created, nil
}

func (s *stubTransactionAPI) AcceptTransaction(_ context.Context, _ string, id int64) (*domain.Transaction, error) {
	return s.moved(id, domain.TransactionAccepted), nil
}

func (s *stubTransactionAPI) RejectTransaction(_ context.Context, _ string, id int64, reason string) (*domain.Transaction, error) {
	t := s.moved(id, domain.TransactionCancelled)
	t.Reason = reason
	return t, nil
}

func (s *stubTransactionAPI) CompleteTransaction(_ context.Context, _ string, id int64) (*domain.Transaction, error) {
	return s.moved(id, domain.TransactionCompleted), nil
}

func (s *stubTransactionAPI) CancelTransaction(_ context.Context, _ string, id int64) (*domain.Transaction, error) {
	return s.moved(id, domain.TransactionCancelled), nil
}

// moved echoes the full stored record with its new status, the way the
// real collaborator answers action endpoints.
func (s *stubTransactionAPI) moved(id int64, status domain.TransactionStatus) *domain.Transaction {
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions[i].Status = status
			t := s.transactions[i]
			return &t
		}
	}
	return &domain.Transaction{ID: id, Status: status}
}

type stubNotificationAPI struct{}

func (s *stubNotificationAPI) ListNotifications(_ context.Context, _ string) ([]domain.Notification, error) {
	return []domain.Notification{{ID: 1, UserID: 10, Title: "Welcome"}}, nil
}

func (s *stubNotificationAPI) UnreadCount(_ context.Context, _ string) (int, error) { return 1, nil }

func (s *stubNotificationAPI) MarkNotificationRead(_ context.Context, _ string, _ int64) error {
	return nil
}

func (s *stubNotificationAPI) MarkAllNotificationsRead(_ context.Context, _ string) error {
	return nil
}

func (s *stubNotificationAPI) DeleteNotification(_ context.Context, _ string, _ int64) error {
	return nil
}

type stubCompanyAPI struct{}

func (s *stubCompanyAPI) GetCompany(_ context.Context, _ string, id int64) (*domain.Company, error) {
	return &domain.Company{ID: id, Name: "GreenMill"}, nil
}

type silentSource struct{}

func (s *silentSource) Subscribe(ctx context.Context) <-chan domain.Notification {
	out := make(chan domain.Notification)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}

// --- Fixture ---

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"auth": "ROLE_USER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func testConfig() *config.Config {
	return &config.Config{RateLimitRPS: 1000, RateLimitBurst: 1000}
}

// newTestRouter wires real services over port stubs. The returned token
// authenticates as the given user.
func newTestRouter(t *testing.T, user *domain.User, cfg *config.Config) (http.Handler, string) {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	token := mintToken(t, user.Login)

	sessions := service.NewSessionManager(
		&stubAuthAPI{token: token, user: user},
		tokenstore.NewMemory(), tokenstore.NewMemory(),
		testSecret, metrics, logger,
	)
	catalog := service.NewCatalogService(&stubProductAPI{products: []domain.Product{
		{ID: 101, CompanyID: 1, Title: "Cotton offcuts", Status: domain.ProductAvailable},
	}}, metrics, logger)
	trade := service.NewTradeService(&stubTransactionAPI{transactions: []domain.Transaction{
		{ID: 500, ProductID: 101, SellerCompanyID: 1, BuyerCompanyID: 2, RequesterID: 10, Status: domain.TransactionPending},
	}}, catalog, metrics, logger)
	notify := service.NewDispatcher(&stubNotificationAPI{}, &silentSource{}, metrics, logger)
	delivery := service.NewDeliveryService(trade, notify, time.Hour, logger)
	companies := cache.NewTTL[*domain.Company](time.Minute)
	impact := service.NewImpactService(&stubCompanyAPI{}, catalog, trade, companies, metrics, logger)

	router := handler.NewRouter(sessions, catalog, trade, notify, delivery, impact, metrics, cfg, logger)
	return router, token
}

func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var routerTestUser = &domain.User{
	ID: 10, Login: "seller", CompanyID: 1,
	Authorities: []string{domain.RoleCompany, domain.RoleUser},
}

// --- Tests ---

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestLogin_ReturnsTokenAndSession(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodPost, "/v1/auth/login", "", domain.Credentials{
		Username: "seller", Password: "pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Token   string          `json:"token"`
		Session *domain.Session `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Token == "" {
		t.Error("response should carry the bearer token")
	}
	if result.Session == nil || !result.Session.Authenticated {
		t.Errorf("session should be authenticated: %+v", result.Session)
	}
}

func TestGuard_MissingTokenCarriesRedirect(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["redirect"] != "/v1/products" {
		t.Errorf("denial should carry the attempted path, got %q", body["redirect"])
	}
}

func TestGuard_ValidTokenPasses(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Products) != 1 || body.Products[0].ID != 101 {
		t.Errorf("unexpected listing %+v", body.Products)
	}
}

func TestGuard_GarbageTokenIsRejected(t *testing.T) {
	router, _ := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/v1/products", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCreateProduct_RequiresCompanyRole(t *testing.T) {
	plainUser := &domain.User{ID: 11, Login: "browser", Authorities: []string{domain.RoleUser}}
	router, token := newTestRouter(t, plainUser, testConfig())

	rec := doRequest(router, http.MethodPost, "/v1/products", token, domain.Product{
		Title: "Pallets", Category: "wood", Quantity: 10,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestCreateProduct_AssignsOwnCompany(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodPost, "/v1/products", token, domain.Product{
		Title: "Pallets", Category: "wood", Quantity: 10, CompanyID: 42,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var created domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.CompanyID != routerTestUser.CompanyID {
		t.Errorf("listing must belong to the caller's company, got %d", created.CompanyID)
	}
}

func TestAcceptTransaction_UnknownIDIs404(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodPost, "/v1/transactions/999/accept", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d. Body: %s", rec.Code, rec.Body.String())
	}
}

func TestAcceptTransaction_HappyPath(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	// Seed the caller's cached view first, the way a client lists before
	// acting.
	if rec := doRequest(router, http.MethodGet, "/v1/transactions", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}

	rec := doRequest(router, http.MethodPost, "/v1/transactions/500/accept", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var accepted domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatal(err)
	}
	if accepted.Status != domain.TransactionAccepted {
		t.Errorf("status = %s", accepted.Status)
	}

	// Second accept hits the transition table.
	rec = doRequest(router, http.MethodPost, "/v1/transactions/500/accept", token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on repeat accept, got %d", rec.Code)
	}
}

func TestCancelTransaction_HappyPath(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	if rec := doRequest(router, http.MethodGet, "/v1/transactions", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}

	rec := doRequest(router, http.MethodPost, "/v1/transactions/500/cancel", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var cancelled domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&cancelled); err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.TransactionCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}

	// The withdrawn transaction is terminal now.
	rec = doRequest(router, http.MethodPost, "/v1/transactions/500/cancel", token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on repeat cancel, got %d", rec.Code)
	}
}

func TestNotifications_ListSeedsFromUpstream(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/v1/notifications", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Notifications []domain.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unreadCount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Notifications) != 1 || body.UnreadCount != 1 {
		t.Errorf("unexpected feed %+v", body)
	}
}

func TestInvalidIDParam_IsBadRequest(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodPost, "/v1/transactions/abc/accept", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimit_RejectsBeyondBurst(t *testing.T) {
	cfg := &config.Config{RateLimitRPS: 0.001, RateLimitBurst: 2}
	router, _ := newTestRouter(t, routerTestUser, cfg)

	for i := 0; i < 2; i++ {
		if rec := doRequest(router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d within burst should pass, got %d", i, rec.Code)
		}
	}
	if rec := doRequest(router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 beyond burst, got %d", rec.Code)
	}
}

func TestGatewayMetrics_ReportsCounters(t *testing.T) {
	router, token := newTestRouter(t, routerTestUser, testConfig())

	rec := doRequest(router, http.MethodGet, "/v1/metrics/gateway", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snapshot map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatal(err)
	}
	if len(snapshot) == 0 {
		t.Error("snapshot should not be empty")
	}
}
