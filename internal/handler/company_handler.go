package handler

import (
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Companies & impact — /v1/companies
// ============================================================

func getCompanyHandler(impact *service.ImpactService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/companies/{companyId}")
		defer span.End()

		id, err := idParam(r, "companyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("company.id", id))

		session := SessionFromContext(ctx)
		company, err := impact.GetCompany(ctx, session.Token, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, company)
	}
}

func getImpactHandler(impact *service.ImpactService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/companies/{companyId}/impact")
		defer span.End()

		id, err := idParam(r, "companyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("company.id", id))

		session := SessionFromContext(ctx)
		report, err := impact.GetImpact(ctx, session.Token, session.User, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
