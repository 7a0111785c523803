package handler

import (
	"net/http"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Produtores
// ============================================================

// saveProducerProfileHandler accepts multipart/form-data with the profile
// fields and an optional "photo" image.
func saveProducerProfileHandler(svc *service.ProducerService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/producer/profile")
		defer span.End()

		if !parseMultipart(w, r, maxBody) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		uploads, closeFiles, err := formUploads(r, "photo")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		defer closeFiles()

		var photo *domain.DocumentUpload
		switch len(uploads) {
		case 0:
		case 1:
			photo = &uploads[0]
		default:
			handleServiceError(w, &domain.ErrValidation{Field: "photo", Message: "envie apenas uma foto"}, logger)
			return
		}

		req := domain.ProducerProfileRequest{
			TaxID:     r.FormValue("taxId"),
			Bio:       r.FormValue("bio"),
			City:      r.FormValue("city"),
			State:     r.FormValue("state"),
			Zip:       r.FormValue("zip"),
			WhatsApp:  r.FormValue("whatsapp"),
			Instagram: r.FormValue("instagram"),
			Facebook:  r.FormValue("facebook"),
		}

		profile, err := svc.SaveProfile(ctx, IdentityFromContext(ctx), &req, photo)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func getProducerProfileHandler(svc *service.ProducerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producer/profile")
		defer span.End()

		profile, err := svc.GetProfile(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func publicProducerHandler(svc *service.ProducerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producers/{userId}")
		defer span.End()

		profile, err := svc.GetPublicProfile(ctx, chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}
