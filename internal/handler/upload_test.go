package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/handler"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/memstore"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/storage"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"go.uber.org/zap"
)

func uploadRouter(t *testing.T, maxUpload int64) (http.Handler, func(role string) *domain.LoginResponse) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memstore.New()

	files, err := storage.NewDriver(&storage.Config{Driver: "local", UploadsPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	catalogCache := cache.NewMemoryCatalog(time.Minute, metrics)
	t.Cleanup(catalogCache.Close)

	docs := service.NewDocumentService(files, maxUpload, logger)
	auth := service.NewAuthService(store, "test-secret", time.Minute, time.Hour, logger)
	router := handler.NewRouter(handler.Services{
		Auth:           auth,
		Catalog:        service.NewCatalogService(store, docs, catalogCache, metrics, logger),
		Producers:      service.NewProducerService(store, docs, logger),
		Certifications: service.NewCertificationService(store, docs, catalogCache, metrics, logger),
		Companies:      service.NewCompanyService(store, nil, docs, logger),
		Store:          store,
	}, handler.RouterConfig{MaxUploadBytes: maxUpload}, metrics, logger)

	login := func(role string) *domain.LoginResponse {
		ctx := context.Background()
		email := role + "@selo.test"
		if _, err := auth.Register(ctx, &domain.RegisterRequest{Email: email, Password: "s3nha-forte", DisplayName: role, Role: role}); err != nil {
			t.Fatal(err)
		}
		resp, err := auth.Login(ctx, &domain.LoginRequest{Email: email, Password: "s3nha-forte"})
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}
	return router, login
}

func oversizedForm(t *testing.T, field string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "big.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("x"), size)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestMultipartBody_TooLarge(t *testing.T) {
	const maxUpload = 1024
	router, login := uploadRouter(t, maxUpload)

	cases := []struct {
		name  string
		path  string
		role  string
		field string
		size  int
	}{
		// three document slots plus the field overhead
		{"certification", "/v1/producer/products/p1/certifications", "producer", "documents", 3*maxUpload + 2<<20},
		{"company", "/v1/company/profile", "company", domain.CompanyDocumentKinds[0], 4 << 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := oversizedForm(t, tc.field, tc.size)
			req := httptest.NewRequest(http.MethodPost, tc.path, body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", "Bearer "+login(tc.role).AccessToken)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Errorf("expected 413, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMultipartBody_WithinLimitReachesService(t *testing.T) {
	router, login := uploadRouter(t, 1024)

	body, contentType := oversizedForm(t, "documents", 512)
	req := httptest.NewRequest(http.MethodPost, "/v1/producer/products/missing/certifications", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+login("producer").AccessToken)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown product, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProducerProfile_SaveAndPublicView(t *testing.T) {
	router, login := uploadRouter(t, 1024)
	producer := login("producer")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"taxId": "529.982.247-25", "city": "Tefé", "state": "AM"} {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("photo", "eu.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("\x89PNG"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/producer/profile", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+producer.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/producers/"+producer.UserID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "52998224725") {
		t.Errorf("public profile exposes the CPF: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"photo"`) {
		t.Errorf("public profile lacks the photo: %s", rec.Body.String())
	}
}

func TestProductImage_RequiresOneImage(t *testing.T) {
	router, login := uploadRouter(t, 1024)
	producer := login("producer")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "sem arquivo")
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/producer/products/p1/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+producer.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
