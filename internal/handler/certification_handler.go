package handler

import (
	"net/http"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Certificações
// ============================================================

// submitCertificationHandler accepts multipart/form-data with a submittedText
// field and up to three files under "documents".
func submitCertificationHandler(svc *service.CertificationService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/producer/products/{productId}/certifications")
		defer span.End()

		productID := chi.URLParam(r, "productId")
		span.SetAttributes(attribute.String("product.id", productID))

		if !parseMultipart(w, r, maxBody) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		uploads, closeFiles, err := formUploads(r, "documents")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		defer closeFiles()

		c, err := svc.Submit(ctx, IdentityFromContext(ctx), productID, r.FormValue("submittedText"), uploads)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, c)
	}
}

func listMyCertificationsHandler(svc *service.CertificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producer/certifications")
		defer span.End()

		certs, err := svc.ListMine(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"certifications": certs,
			"total":          len(certs),
		})
	}
}

func getCertificationHandler(svc *service.CertificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/certifications/{certificationId}")
		defer span.End()

		c, err := svc.Get(ctx, IdentityFromContext(ctx), chi.URLParam(r, "certificationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

func adminListCertificationsHandler(svc *service.CertificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/certifications")
		defer span.End()

		certs, err := svc.ListForAdmin(ctx, IdentityFromContext(ctx), r.URL.Query().Get("state"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"certifications": certs,
			"total":          len(certs),
		})
	}
}

func resolveCertificationHandler(svc *service.CertificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/certifications/{certificationId}/resolve")
		defer span.End()

		var req domain.ResolveRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		c, err := svc.Resolve(ctx, IdentityFromContext(ctx), chi.URLParam(r, "certificationId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}
