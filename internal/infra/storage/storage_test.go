package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/infra/storage"
)

func TestLocalStorage_UploadExistsDelete(t *testing.T) {
	base := t.TempDir()
	s := storage.NewLocalStorage(base, "/uploads/")
	ctx := context.Background()

	path, url, err := s.Upload(ctx, strings.NewReader("%PDF-1.4"), "certifications/u1/doc.pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if path != "certifications/u1/doc.pdf" {
		t.Errorf("unexpected path %q", path)
	}
	if url != "/uploads/certifications/u1/doc.pdf" {
		t.Errorf("unexpected url %q", url)
	}

	ok, err := s.Exists(ctx, path)
	if err != nil || !ok {
		t.Fatalf("expected file to exist, got %v %v", ok, err)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = s.Exists(ctx, path)
	if ok {
		t.Error("expected file to be gone")
	}
	if _, err := os.Stat(filepath.Join(base, "certifications")); !os.IsNotExist(err) {
		t.Error("expected empty parent directories to be removed")
	}

	// deleting twice is fine
	if err := s.Delete(ctx, path); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := storage.NewLocalStorage(t.TempDir(), "")

	if _, _, err := s.Upload(context.Background(), strings.NewReader("x"), "../escape.pdf"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestNewDriver(t *testing.T) {
	d, err := storage.NewDriver(&storage.Config{Driver: "", UploadsPath: t.TempDir()})
	if err != nil || d == nil {
		t.Fatalf("expected local driver, got %v", err)
	}

	if _, err := storage.NewDriver(&storage.Config{Driver: "s3"}); err == nil {
		t.Error("expected s3 without bucket to fail")
	}

	if _, err := storage.NewDriver(&storage.Config{Driver: "ftp"}); err == nil {
		t.Error("expected unsupported driver error")
	}
}
