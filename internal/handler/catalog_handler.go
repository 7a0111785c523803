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
// Catálogo público
// ============================================================

func publicCatalogHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/catalog")
		defer span.End()

		products, err := svc.ListPublic(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.Int("catalog.size", len(products)))
		writeJSON(w, http.StatusOK, map[string]any{
			"products": products,
			"total":    len(products),
		})
	}
}

func publicProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/catalog/{productId}")
		defer span.End()

		p, err := svc.GetPublicProduct(ctx, chi.URLParam(r, "productId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

// ============================================================
// Produtor
// ============================================================

func listMyProductsHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producer/products")
		defer span.End()

		products, err := svc.ListMine(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"products": products,
			"total":    len(products),
		})
	}
}

func getMyProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producer/products/{productId}")
		defer span.End()

		p, err := svc.GetProduct(ctx, IdentityFromContext(ctx), chi.URLParam(r, "productId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func createProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/producer/products")
		defer span.End()

		var req domain.CreateProductRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.CreateProduct(ctx, IdentityFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

func updateProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/producer/products/{productId}")
		defer span.End()

		var req domain.UpdateProductRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.UpdateProduct(ctx, IdentityFromContext(ctx), chi.URLParam(r, "productId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/producer/products/{productId}")
		defer span.End()

		if err := svc.DeleteProduct(ctx, IdentityFromContext(ctx), chi.URLParam(r, "productId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// productImageHandler accepts multipart/form-data with one jpg, jpeg or png
// file under "image".
func productImageHandler(svc *service.CatalogService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/producer/products/{productId}/image")
		defer span.End()

		productID := chi.URLParam(r, "productId")
		span.SetAttributes(attribute.String("product.id", productID))

		if !parseMultipart(w, r, maxBody) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		uploads, closeFiles, err := formUploads(r, "image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		defer closeFiles()
		if len(uploads) != 1 {
			handleServiceError(w, &domain.ErrValidation{Field: "image", Message: "envie exatamente uma imagem"}, logger)
			return
		}

		p, err := svc.SetProductImage(ctx, IdentityFromContext(ctx), productID, uploads[0])
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func producerDashboardHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/producer/dashboard")
		defer span.End()

		dash, err := svc.ProducerDashboard(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, dash)
	}
}
