package handler

import (
	"net/http"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Empresas
// ============================================================

// registerCompanyHandler accepts multipart/form-data with the profile fields
// and one file for each required company document.
func registerCompanyHandler(svc *service.CompanyService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/company/profile")
		defer span.End()

		if !parseMultipart(w, r, maxBody) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		uploads, closeFiles, err := formUploads(r, domain.CompanyDocumentKinds...)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		defer closeFiles()

		req := domain.CompanyProfileRequest{
			TaxID:     r.FormValue("taxId"),
			LegalName: r.FormValue("legalName"),
			TradeName: r.FormValue("tradeName"),
			Address:   r.FormValue("address"),
			City:      r.FormValue("city"),
			State:     r.FormValue("state"),
			Zip:       r.FormValue("zip"),
			Phone:     r.FormValue("phone"),
		}

		profile, err := svc.RegisterProfile(ctx, IdentityFromContext(ctx), &req, uploads)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, profile)
	}
}

func getCompanyProfileHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/company/profile")
		defer span.End()

		profile, err := svc.GetProfile(ctx, IdentityFromContext(ctx), "")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func cnpjLookupHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/company/cnpj/{cnpj}")
		defer span.End()

		company, err := svc.LookupCNPJ(ctx, IdentityFromContext(ctx), chi.URLParam(r, "cnpj"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company)
	}
}

func adminListCompaniesHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/companies")
		defer span.End()

		profiles, err := svc.ListForAdmin(ctx, IdentityFromContext(ctx), r.URL.Query().Get("state"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"companies": profiles,
			"total":     len(profiles),
		})
	}
}

func adminGetCompanyHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/companies/{userId}")
		defer span.End()

		profile, err := svc.GetProfile(ctx, IdentityFromContext(ctx), chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func verifyCompanyHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/companies/{userId}/verify")
		defer span.End()

		var req domain.VerifyCompanyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		profile, err := svc.Verify(ctx, IdentityFromContext(ctx), chi.URLParam(r, "userId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}
