package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes documents below a base directory on disk.
type LocalStorage struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStorage creates a new local storage driver.
func NewLocalStorage(basePath, publicBaseURL string) *LocalStorage {
	if publicBaseURL == "" {
		publicBaseURL = "/uploads"
	}
	return &LocalStorage{
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Upload copies file to basePath/path and returns path plus its public URL.
func (s *LocalStorage) Upload(ctx context.Context, file io.Reader, path string) (string, string, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		_ = os.Remove(fullPath)
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, s.publicURL(path), nil
}

// Delete removes a file; a missing file is not an error.
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.removeEmptyDirs(filepath.Dir(fullPath))
	return nil
}

// Exists checks if a file exists on local filesystem.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

func (s *LocalStorage) publicURL(path string) string {
	return s.publicBaseURL + "/" + filepath.ToSlash(path)
}

// resolve joins path under basePath and rejects anything escaping it.
func (s *LocalStorage) resolve(path string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage path %q", path)
	}
	return fullPath, nil
}

// removeEmptyDirs removes empty parent directories up to basePath.
func (s *LocalStorage) removeEmptyDirs(dir string) {
	rel, err := filepath.Rel(s.basePath, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	if err := os.Remove(dir); err == nil {
		s.removeEmptyDirs(filepath.Dir(dir))
	}
}
