// Package storage persists uploaded certification and company documents.
package storage

import (
	"fmt"
	"strings"

	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

// Config selects and configures a driver.
type Config struct {
	Driver        string // local | s3
	UploadsPath   string
	PublicBaseURL string

	AWSRegion          string
	AWSBucket          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string // S3-compatible endpoint (MinIO, R2); empty for AWS
}

// NewDriver creates a storage driver based on configuration.
func NewDriver(cfg *Config) (port.FileStorage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "local", "":
		uploadsPath := cfg.UploadsPath
		if uploadsPath == "" {
			uploadsPath = "./uploads"
		}
		return NewLocalStorage(uploadsPath, cfg.PublicBaseURL), nil

	case "s3":
		return NewS3Storage(cfg)

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// contentType returns the MIME type for the accepted document extensions.
func contentType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".doc"):
		return "application/msword"
	case strings.HasSuffix(lower, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	}
	return "application/octet-stream"
}
