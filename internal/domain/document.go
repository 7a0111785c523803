package domain

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxDocumentBytes is the upload size limit for any document.
const MaxDocumentBytes int64 = 5 << 20

var allowedDocumentExt = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

var allowedImageExt = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// DocumentRef is a stored file reference. The bytes are never inspected here.
type DocumentRef struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// DocumentExt returns the lower-case extension of filename without the dot.
func DocumentExt(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// ValidateDocument checks the extension allow-list and size limit.
func ValidateDocument(field, filename string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxDocumentBytes
	}
	if !allowedDocumentExt[DocumentExt(filename)] {
		return &ErrValidation{Field: field, Message: "formato não permitido (use pdf, doc, docx, jpg, jpeg ou png)"}
	}
	if size <= 0 {
		return &ErrValidation{Field: field, Message: "arquivo vazio"}
	}
	if size > maxBytes {
		return &ErrValidation{Field: field, Message: fmt.Sprintf("arquivo excede o tamanho máximo de %dMB", maxBytes>>20)}
	}
	return nil
}

// ValidateImage is ValidateDocument restricted to jpg, jpeg and png.
func ValidateImage(field, filename string, size, maxBytes int64) error {
	if !allowedImageExt[DocumentExt(filename)] {
		return &ErrValidation{Field: field, Message: "formato de imagem não permitido (use jpg, jpeg ou png)"}
	}
	return ValidateDocument(field, filename, size, maxBytes)
}

// DocumentUpload is one incoming file before it reaches storage.
// Field names the form slot, used for field-level validation messages.
type DocumentUpload struct {
	Field    string
	Filename string
	Size     int64
	Body     io.Reader
}
