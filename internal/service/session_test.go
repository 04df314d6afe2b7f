package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/infra/tokenstore"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// --- Mocks ---

type mockAuthAPI struct {
	token      string
	authErr    error
	user       *domain.User
	accountErr error
	registered *domain.User
}

func (m *mockAuthAPI) Authenticate(_ context.Context, _ domain.Credentials) (string, error) {
	return m.token, m.authErr
}

func (m *mockAuthAPI) Account(_ context.Context, _ string) (*domain.User, error) {
	return m.user, m.accountErr
}

func (m *mockAuthAPI) Register(_ context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	m.registered = &domain.User{Email: req.Email}
	return m.registered, nil
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"auth": "ROLE_COMPANY ROLE_USER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newSessionManager(api *mockAuthAPI) (*service.SessionManager, *tokenstore.Memory, *tokenstore.Memory) {
	durable := tokenstore.NewMemory()
	ephemeral := tokenstore.NewMemory()
	m := service.NewSessionManager(api, durable, ephemeral, testSecret, observability.NewMetrics(), zap.NewNop())
	return m, durable, ephemeral
}

// --- Tests ---

func TestAuthenticate_RememberMeUsesDurableStore(t *testing.T) {
	token := signedToken(t, "seller")
	api := &mockAuthAPI{token: token, user: &domain.User{ID: 10, Login: "seller"}}
	m, durable, ephemeral := newSessionManager(api)

	session, err := m.Authenticate(context.Background(), domain.Credentials{
		Username: "seller", Password: "pw", RememberMe: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Authenticated || !session.Fetched {
		t.Errorf("session should be authenticated and fetched: %+v", session)
	}

	if tokens, _ := durable.List(); len(tokens) != 1 {
		t.Error("remember-me token should land in the durable store")
	}
	if tokens, _ := ephemeral.List(); len(tokens) != 0 {
		t.Error("remember-me token must not land in the ephemeral store")
	}
}

func TestAuthenticate_WithoutRememberMeUsesEphemeralStore(t *testing.T) {
	token := signedToken(t, "buyer")
	api := &mockAuthAPI{token: token, user: &domain.User{ID: 11, Login: "buyer"}}
	m, durable, ephemeral := newSessionManager(api)

	if _, err := m.Authenticate(context.Background(), domain.Credentials{
		Username: "buyer", Password: "pw",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tokens, _ := durable.List(); len(tokens) != 0 {
		t.Error("ephemeral session must not persist durably")
	}
	if tokens, _ := ephemeral.List(); len(tokens) != 1 {
		t.Error("token should land in the ephemeral store")
	}
}

func TestAuthenticate_ValidatesInput(t *testing.T) {
	m, _, _ := newSessionManager(&mockAuthAPI{})

	_, err := m.Authenticate(context.Background(), domain.Credentials{Password: "pw"})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) || validation.Field != "username" {
		t.Errorf("expected username validation error, got %v", err)
	}

	_, err = m.Authenticate(context.Background(), domain.Credentials{Username: "u"})
	if !errors.As(err, &validation) || validation.Field != "password" {
		t.Errorf("expected password validation error, got %v", err)
	}
}

func TestGetSession_EmptyTokenIsFetchedAndAnonymous(t *testing.T) {
	m, _, _ := newSessionManager(&mockAuthAPI{})

	session, err := m.GetSession(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Fetched {
		t.Error("empty token must still resolve to a fetched session")
	}
	if session.Authenticated {
		t.Error("empty token cannot be authenticated")
	}
}

func TestGetSession_FailureStillFlipsFetched(t *testing.T) {
	token := signedToken(t, "seller")
	api := &mockAuthAPI{user: nil, accountErr: &domain.ErrNetwork{Operation: "GET /account", Err: errors.New("refused")}}
	m, _, _ := newSessionManager(api)

	session, err := m.GetSession(context.Background(), token)
	if err == nil {
		t.Fatal("expected error")
	}
	if !session.Fetched {
		t.Error("Fetched must flip exactly once per attempt, even on failure")
	}
	if session.Authenticated {
		t.Error("failed resolution cannot authenticate")
	}
	if session.Error == "" {
		t.Error("failure reason should be recorded on the session")
	}
}

func TestGetSession_InvalidSignatureDropsToken(t *testing.T) {
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	m, durable, _ := newSessionManager(&mockAuthAPI{})
	durable.Save(bad)

	_, err = m.GetSession(context.Background(), bad)
	var authErr *domain.ErrAuthentication
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if tokens, _ := durable.List(); len(tokens) != 0 {
		t.Error("invalid token must be dropped from the durable store")
	}
}

func TestGetSession_CachesResolvedSession(t *testing.T) {
	token := signedToken(t, "seller")
	api := &mockAuthAPI{user: &domain.User{ID: 10, Login: "seller"}}
	m, _, _ := newSessionManager(api)

	first, err := m.GetSession(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Subsequent lookups must not hit the upstream again.
	api.accountErr = errors.New("upstream is down now")
	second, err := m.GetSession(context.Background(), token)
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if first != second {
		t.Error("expected the cached session instance")
	}
}

func TestClearAuth_FiresLogoutHooksAndDropsToken(t *testing.T) {
	token := signedToken(t, "seller")
	api := &mockAuthAPI{token: token, user: &domain.User{ID: 10, Login: "seller"}}
	m, durable, _ := newSessionManager(api)

	var hookUser int64
	m.OnLogout(func(userID int64) { hookUser = userID })

	if _, err := m.Authenticate(context.Background(), domain.Credentials{
		Username: "seller", Password: "pw", RememberMe: true,
	}); err != nil {
		t.Fatal(err)
	}

	m.ClearAuth(token)

	if hookUser != 10 {
		t.Errorf("logout hook should receive the user id, got %d", hookUser)
	}
	if tokens, _ := durable.List(); len(tokens) != 0 {
		t.Error("forced logout must drop the durable token")
	}
	if active := m.ActiveTokens(); len(active) != 0 {
		t.Errorf("no session should survive ClearAuth, got %v", active)
	}
}

func TestRegister_Validation(t *testing.T) {
	m, _, _ := newSessionManager(&mockAuthAPI{})

	cases := []struct {
		name  string
		req   domain.RegisterRequest
		field string
	}{
		{"bad email", domain.RegisterRequest{Email: "nope", Password: "longenough", Role: domain.RoleUser}, "email"},
		{"short password", domain.RegisterRequest{Email: "a@b.c", Password: "short", Role: domain.RoleUser}, "password"},
		{"unknown role", domain.RegisterRequest{Email: "a@b.c", Password: "longenough", Role: "ROLE_WIZARD"}, "role"},
		{"company without name", domain.RegisterRequest{Email: "a@b.c", Password: "longenough", Role: domain.RoleCompany}, "companyName"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Register(context.Background(), &tc.req)
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) || validation.Field != tc.field {
				t.Errorf("expected validation error on %q, got %v", tc.field, err)
			}
		})
	}
}

func TestRestore_ResolvesDurableTokens(t *testing.T) {
	token := signedToken(t, "seller")
	api := &mockAuthAPI{user: &domain.User{ID: 10, Login: "seller"}}
	m, durable, _ := newSessionManager(api)
	durable.Save(token)

	m.Restore(context.Background())

	if got := m.ActiveTokens(); len(got) != 1 || got[0] != token {
		t.Errorf("expected the restored token to be active, got %v", got)
	}
}
