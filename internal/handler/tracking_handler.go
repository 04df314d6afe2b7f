package handler

import (
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Delivery tracking — /v1/transactions/{id}/tracking
// ============================================================

func trackingStatusHandler(delivery *service.DeliveryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/transactions/{transactionId}/tracking")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status, ok := delivery.Status(id)
		if !ok {
			handleServiceError(w, &domain.ErrNotFound{Resource: "tracking view", ID: id}, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func trackingStartHandler(delivery *service.DeliveryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/tracking/start")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("transaction.id", id))

		session := SessionFromContext(ctx)
		status, err := delivery.Start(session.Token, session.User, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, status)
	}
}

func trackingStopHandler(delivery *service.DeliveryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/tracking/stop")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		delivery.Stop(id)
		w.WriteHeader(http.StatusNoContent)
	}
}
