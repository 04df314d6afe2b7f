package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const sessionKey contextKey = "session"

// bearerToken extracts the token from the Authorization header. Empty when
// the header is missing or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// SessionGuard resolves the caller's session before any protected route
// runs and rejects the request while resolution is pending or failed. The
// denial response carries the path the caller was after, so a client can
// come back to it once logged in.
func SessionGuard(sessions *service.SessionManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				logger.Warn("guard: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error":    "authentication required",
					"redirect": r.URL.Path,
				})
				return
			}

			session, err := sessions.GetSession(r.Context(), token)
			if session != nil && !session.Fetched {
				writeError(w, http.StatusServiceUnavailable, "session not yet resolved")
				return
			}
			if err != nil || session == nil || !session.Authenticated {
				logger.Warn("guard: unauthenticated",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error":    "authentication required",
					"redirect": r.URL.Path,
				})
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthorities rejects sessions lacking all of the given authorities.
// Must run after SessionGuard.
func RequireAuthorities(logger *zap.Logger, authorities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil || session.User == nil || !session.User.HasAnyAuthority(authorities...) {
				logger.Warn("guard: insufficient authorities",
					zap.String("path", r.URL.Path),
					zap.Strings("required", authorities),
				)
				writeError(w, http.StatusForbidden, "insufficient authorities")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware applies a process-wide token bucket to all requests.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext extracts the resolved session injected by SessionGuard.
func SessionFromContext(ctx context.Context) *domain.Session {
	v, _ := ctx.Value(sessionKey).(*domain.Session)
	return v
}
