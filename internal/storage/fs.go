package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docpipe/docpipe/internal/common"
)

// FSStore is a filesystem-backed ObjectStore. Keys map to paths under the
// bucket root; the content type is recorded only in logs.
type FSStore struct {
	root   string
	bucket string
	// urlBase prefixes the public URL recorded on artifacts, e.g. a CDN or
	// file server in front of the bucket root. Empty means file:// URLs.
	urlBase string
	logger  *slog.Logger
}

func NewFSStore(cfg common.StorageConfig, logger *slog.Logger) *FSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStore{
		root:    cfg.RootDir,
		bucket:  cfg.Bucket,
		urlBase: strings.TrimRight(cfg.URLBase, "/"),
		logger:  logger,
	}
}

// Bucket is the logical bucket name recorded on job records.
func (s *FSStore) Bucket() string { return s.bucket }

func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	path, err := s.path(key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("mkdir for %q: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return PutResult{}, fmt.Errorf("write %q: %w", key, err)
	}
	s.logger.Info("storage.put", "key", key, "bytes", len(data), "content_type", contentType)
	return PutResult{
		Location: Location{Bucket: s.bucket, Key: key},
		URL:      s.url(key, path),
		Length:   len(data),
	}, nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("get %q: %w", key, common.ErrNotFound)
		}
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	s.logger.Info("storage.delete", "key", key)
	return nil
}

// path rejects keys that would escape the bucket root.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q: %w", key, common.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSStore) url(key, path string) string {
	if s.urlBase != "" {
		return s.urlBase + "/" + key
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
