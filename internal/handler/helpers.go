package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// idParam parses a numeric URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &domain.ErrValidation{Field: name, Message: "must be a numeric id"}
	}
	return id, nil
}

// listCriteriaFromQuery maps the request query onto the shared filter
// struct used by catalog and trade listings.
func listCriteriaFromQuery(r *http.Request) domain.ListCriteria {
	q := r.URL.Query()
	c := domain.ListCriteria{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Location: q.Get("location"),
		Sort:     q.Get("sort"),
	}
	if v := q.Get("priceMin"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.PriceMin = f
		}
	}
	if v := q.Get("priceMax"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.PriceMax = f
		}
	}
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 {
			c.Page = p
		}
	}
	if v := q.Get("size"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 && s <= 100 {
			c.Size = s
		}
	}
	return c
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var authn *domain.ErrAuthentication
	var authz *domain.ErrAuthorization
	var transition *domain.ErrInvalidTransition
	var validation *domain.ErrValidation
	var network *domain.ErrNetwork
	var upstream *domain.ErrUpstream
	var circuitOpen *domain.ErrCircuitOpen
	var conflict *domain.ErrConflict

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &authn):
		logger.Warn("authentication failed", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &authz):
		logger.Warn("forbidden", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &transition):
		logger.Warn("invalid transition",
			zap.String("current", string(transition.Current)),
			zap.String("attempted", string(transition.Attempted)),
		)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &network):
		logger.Error("upstream unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &upstream):
		logger.Warn("upstream rejected request",
			zap.Int("status", upstream.Status),
			zap.String("error", err.Error()),
		)
		status := upstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
