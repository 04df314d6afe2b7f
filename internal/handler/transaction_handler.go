package handler

import (
	"encoding/json"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Trade — /v1/transactions
// ============================================================

func listTransactionsHandler(trade *service.TradeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		session := SessionFromContext(ctx)
		transactions, err := trade.List(ctx, session.Token, session.User.ID, listCriteriaFromQuery(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if transactions == nil {
			transactions = []domain.Transaction{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
	}
}

func createTransactionHandler(trade *service.TradeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var t domain.Transaction
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		session := SessionFromContext(ctx)
		created, err := trade.Create(ctx, session.Token, session.User, &t)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func acceptTransactionHandler(trade *service.TradeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/accept")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("transaction.id", id))

		session := SessionFromContext(ctx)
		accepted, err := trade.Accept(ctx, session.Token, session.User, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accepted)
	}
}

func cancelTransactionHandler(trade *service.TradeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/cancel")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("transaction.id", id))

		session := SessionFromContext(ctx)
		cancelled, err := trade.Cancel(ctx, session.Token, session.User, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cancelled)
	}
}

func rejectTransactionHandler(trade *service.TradeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/reject")
		defer span.End()

		id, err := idParam(r, "transactionId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("transaction.id", id))

		var body struct {
			Reason string `json:"reason"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		session := SessionFromContext(ctx)
		rejected, err := trade.Reject(ctx, session.Token, session.User, id, body.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rejected)
	}
}
