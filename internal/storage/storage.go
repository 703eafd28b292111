// Package storage keeps uploaded images and resolves image references back to
// their bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/phenotype-matcher/internal/config"
)

var (
	// ErrNotFound is returned when no upload exists for a key
	ErrNotFound = errors.New("upload not found")
	// ErrInvalidKey is returned for keys that were not issued by a Store
	ErrInvalidKey = errors.New("invalid upload key")
)

// Store persists uploads under generated keys
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// NewKey returns a fresh upload key for the data, e.g. "3f2c...e1.jpg".
func NewKey(data []byte) string {
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}

// ValidateKey accepts only keys in the form produced by NewKey.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ext := path.Ext(key)
	if _, err := uuid.Parse(strings.TrimSuffix(key, ext)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// New builds the store selected by STORAGE_BACKEND.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
