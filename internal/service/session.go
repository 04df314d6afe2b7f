// Package service holds the gateway's orchestration layer: session
// lifecycle, entity caches, the trade state machine, notification
// dispatching and delivery tracking.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// SessionManager is the single source of truth for "who is logged in".
// It is injected into everything that needs identity; there is no package
// level session state.
type SessionManager struct {
	api       port.AuthAPI
	durable   port.TokenStore
	ephemeral port.TokenStore
	jwtSecret []byte
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*domain.Session

	logoutMu sync.RWMutex
	onLogout []func(userID int64)
}

// NewSessionManager wires the session store to the marketplace auth API and
// the two token stores (durable for "remember me", ephemeral otherwise).
func NewSessionManager(api port.AuthAPI, durable, ephemeral port.TokenStore, jwtSecret string, metrics *observability.Metrics, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		api:       api,
		durable:   durable,
		ephemeral: ephemeral,
		jwtSecret: []byte(jwtSecret),
		metrics:   metrics,
		logger:    logger,
		sessions:  make(map[string]*domain.Session),
	}
}

// OnLogout registers a hook fired whenever a session ends, voluntarily or
// through the forced-logout policy. Used to stop per-session timers.
func (m *SessionManager) OnLogout(fn func(userID int64)) {
	m.logoutMu.Lock()
	defer m.logoutMu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

func (m *SessionManager) fireLogout(userID int64) {
	m.logoutMu.RLock()
	hooks := make([]func(int64), len(m.onLogout))
	copy(hooks, m.onLogout)
	m.logoutMu.RUnlock()
	for _, fn := range hooks {
		fn(userID)
	}
}

// idTokenClaims are the claims the marketplace puts in its HS256 id_token.
type idTokenClaims struct {
	Auth string `json:"auth"` // space separated authorities
	jwt.RegisteredClaims
}

// validateToken checks signature and expiry locally before the gateway
// spends a round-trip on /account.
func (m *SessionManager) validateToken(token string) (*idTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &idTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrAuthentication{Message: "invalid or expired token"}
	}
	claims, ok := parsed.Claims.(*idTokenClaims)
	if !ok || !parsed.Valid {
		return nil, &domain.ErrAuthentication{Message: "invalid token"}
	}
	return claims, nil
}

// resolve turns a token into a session by fetching the account snapshot.
// Fetched flips to true exactly once per attempt, success or not, so
// guarded screens never wait forever.
func (m *SessionManager) resolve(ctx context.Context, token string) (*domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.resolve")
	defer span.End()

	session := &domain.Session{Token: token}

	if _, err := m.validateToken(token); err != nil {
		session.Fetched = true
		session.Error = err.Error()
		m.dropToken(token)
		return session, err
	}

	user, err := m.api.Account(ctx, token)
	if err != nil {
		session.Fetched = true
		session.Error = err.Error()
		if _, ok := err.(*domain.ErrAuthentication); ok {
			m.dropToken(token)
		}
		return session, err
	}

	session.User = user
	session.Authenticated = true
	session.Fetched = true

	m.mu.Lock()
	m.sessions[token] = session
	m.mu.Unlock()

	return session, nil
}

// Authenticate exchanges credentials for a token, resolves the account and
// persists the token in the store matching the rememberMe flag.
func (m *SessionManager) Authenticate(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Authenticate")
	defer span.End()

	start := time.Now()
	defer func() {
		m.metrics.RecordRequestDuration("authenticate", time.Since(start))
	}()

	if creds.Username == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username is required"}
	}
	if creds.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "password is required"}
	}

	token, err := m.api.Authenticate(ctx, creds)
	if err != nil {
		return &domain.Session{Fetched: true, Error: err.Error()}, err
	}

	session, err := m.resolve(ctx, token)
	if err != nil {
		return session, err
	}

	store := m.ephemeral
	if creds.RememberMe {
		store = m.durable
	}
	if err := store.Save(token); err != nil {
		m.logger.Warn("session: failed to persist token", zap.Error(err))
	}

	m.logger.Info("user logged in",
		zap.String("login", session.User.Login),
		zap.Bool("remember_me", creds.RememberMe),
	)
	return session, nil
}

// GetSession returns the resolved session for a token, resolving it on
// first sight. Called by the route guard on every protected request.
func (m *SessionManager) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return &domain.Session{Fetched: true}, nil
	}

	m.mu.RLock()
	session, ok := m.sessions[token]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	return m.resolve(ctx, token)
}

// Register proxies account creation with client-side validation so obvious
// mistakes never reach the network.
func (m *SessionManager) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionManager.Register")
	defer span.End()

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	if len(req.Password) < 8 {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at least 8 characters"}
	}
	switch req.Role {
	case domain.RoleCompany, domain.RoleAssociation, domain.RoleUser:
	default:
		return nil, &domain.ErrValidation{Field: "role", Message: "unknown role"}
	}
	if req.Role == domain.RoleCompany && req.CompanyName == "" {
		return nil, &domain.ErrValidation{Field: "companyName", Message: "company accounts need a company name"}
	}

	return m.api.Register(ctx, req)
}

// Logout ends the session: the token is cleared from both stores and the
// user snapshot discarded.
func (m *SessionManager) Logout(ctx context.Context, token string) {
	_, span := sessionTracer.Start(ctx, "SessionManager.Logout")
	defer span.End()

	m.clear(token, false)
}

// ClearAuth is the synchronous local-only reset used by the 401/403
// interceptor. No upstream calls happen here.
func (m *SessionManager) ClearAuth(token string) {
	m.clear(token, true)
}

func (m *SessionManager) clear(token string, forced bool) {
	m.mu.Lock()
	session := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	m.dropToken(token)

	var userID int64
	if session != nil && session.User != nil {
		userID = session.User.ID
	}
	m.fireLogout(userID)

	if forced {
		m.metrics.IncrForcedLogout()
		m.logger.Warn("session cleared by forced-logout policy", zap.Int64("user_id", userID))
		return
	}
	m.logger.Info("user logged out", zap.Int64("user_id", userID))
}

// dropToken removes a token from both stores; stale tokens must not come
// back on restart.
func (m *SessionManager) dropToken(token string) {
	if err := m.durable.Delete(token); err != nil {
		m.logger.Warn("session: durable token delete failed", zap.Error(err))
	}
	if err := m.ephemeral.Delete(token); err != nil {
		m.logger.Warn("session: ephemeral token delete failed", zap.Error(err))
	}
}

// Restore resolves every durably persisted token at startup, mirroring the
// app-boot session fetch of a returning "remember me" user.
func (m *SessionManager) Restore(ctx context.Context) {
	tokens, err := m.durable.List()
	if err != nil {
		m.logger.Warn("session: token restore failed", zap.Error(err))
		return
	}
	for _, token := range tokens {
		if _, err := m.resolve(ctx, token); err != nil {
			m.logger.Info("session: persisted token no longer valid", zap.Error(err))
		}
	}
	if len(tokens) > 0 {
		m.logger.Info("sessions restored from durable store", zap.Int("count", len(tokens)))
	}
}

// ActiveTokens lists tokens with a resolved, authenticated session. The
// cache refresher uses them to refresh per-user views.
func (m *SessionManager) ActiveTokens() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.sessions))
	for token, s := range m.sessions {
		if s.Authenticated {
			out = append(out, token)
		}
	}
	return out
}
