package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage keeps objects in a directory served by the API under publicPath
type LocalStorage struct {
	dir        string
	publicPath string
}

// NewLocalStorage creates dir if needed. publicPath is the URL prefix the
// files are served under, e.g. /api/videos.
func NewLocalStorage(dir, publicPath string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStorage{dir: dir, publicPath: strings.TrimRight(publicPath, "/")}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.LocalPath(key)); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	return s.GetPublicURL(key), nil
}

// Delete removes the object. A missing object is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.LocalPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetSignedURL returns the public path; local files need no signature
func (s *LocalStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.GetPublicURL(key), nil
}

func (s *LocalStorage) GetPublicURL(key string) string {
	return s.publicPath + "/" + key
}

func (s *LocalStorage) LocalPath(key string) string {
	return filepath.Join(s.dir, filepath.Base(key))
}
