package handler

import (
	"encoding/json"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Session lifecycle — /v1/auth
// ============================================================

func authLoginHandler(sessions *service.SessionManager, notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var creds domain.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		session, err := sessions.Authenticate(ctx, creds)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// Seed the notification feed so the first render has it. Losing
		// this to a blip is not a login failure.
		if err := notify.Sync(ctx, session.Token, session.User.ID); err != nil {
			logger.Warn("login: notification seed failed", zap.Error(err))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"token":   session.Token,
			"session": session,
		})
	}
}

func authRegisterHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := sessions.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

// authSessionHandler reports the resolved session for whatever token the
// caller presents. An absent token yields an unauthenticated but fetched
// session, never an error; the route guard consumes the same state.
func authSessionHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/session")
		defer span.End()

		session, err := sessions.GetSession(ctx, bearerToken(r))
		if err != nil {
			// The session snapshot itself carries the failure state.
			logger.Debug("session resolution failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func authLogoutHandler(sessions *service.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		sessions.Logout(ctx, bearerToken(r))
		w.WriteHeader(http.StatusNoContent)
	}
}
