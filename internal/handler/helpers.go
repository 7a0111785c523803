package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// multipartMemory is how much of a multipart body is kept in memory; the
// rest spills to temporary files.
const multipartMemory = 16 << 20

// multipartOverhead is the room left for text fields and part headers.
const multipartOverhead = 1 << 20

// multipartLimit bounds a body carrying up to slots files of maxFile bytes.
func multipartLimit(maxFile int64, slots int) int64 {
	if maxFile <= 0 {
		maxFile = domain.MaxDocumentBytes
	}
	return int64(slots)*maxFile + multipartOverhead
}

// parseMultipart caps the body at limit bytes and parses it. It writes the
// error response and returns false on failure.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		writeError(w, http.StatusRequestEntityTooLarge, "arquivo excede o tamanho máximo")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid multipart body")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// formUploads collects the files posted under the given multipart fields, in
// field order. Fields with no file are skipped.
func formUploads(r *http.Request, fields ...string) ([]domain.DocumentUpload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	var uploads []domain.DocumentUpload
	for _, field := range fields {
		if r.MultipartForm == nil {
			break
		}
		files := r.MultipartForm.File[field]
		for i, fh := range files {
			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			opened = append(opened, f)
			name := field
			if len(files) > 1 {
				name = fmt.Sprintf("%s[%d]", field, i)
			}
			uploads = append(uploads, domain.DocumentUpload{
				Field:    name,
				Filename: fh.Filename,
				Size:     fh.Size,
				Body:     f,
			})
		}
	}
	return uploads, closeAll, nil
}

// handleServiceError maps domain errors to HTTP responses. Forbidden and
// not-found bodies are generic so they never describe another user's data.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var invalidSignature *domain.ErrInvalidSignature
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		fields := validation.FieldErrors()
		msg := validation.Message
		if msg == "" || len(fields) > 1 {
			msg = "dados inválidos"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Fields: fields})
	case errors.As(err, &invalidSignature):
		logger.Warn("invalid webhook signature")
		writeError(w, http.StatusBadRequest, "assinatura inválida")
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, "acesso negado")
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "recurso não encontrado")
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
