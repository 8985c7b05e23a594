// Package storage keeps KYC documents and avatars in blob storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"trade-dashboard/config"
)

// ErrObjectNotFound is returned when a key has no object
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob opened for reading
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store is a blob store addressed by slash-separated keys
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (*Object, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// AvatarKey is the object key of a user's avatar
func AvatarKey(userID string) string {
	return path.Join("avatars", userID)
}

// KYCKey is the object key of one side of a user's identity document
func KYCKey(userID, side string) string {
	return path.Join("kyc", userID, "aadhaar-"+side+".jpg")
}

// Owner returns the user a key belongs to, or "" for keys outside the known layouts
func Owner(key string) string {
	parts := strings.Split(path.Clean(key), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "avatars", "kyc":
		return parts[1]
	}
	return ""
}

// New builds the store selected by cfg.Driver. publicPrefix is the URL
// prefix the memory driver hands out; the API serves it.
func New(ctx context.Context, cfg config.StorageConfig, publicPrefix string, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(ctx, cfg, logger)
	case "", "memory":
		logger.Warn().Msg("Using in-memory blob storage; uploads are lost on restart")
		return NewMemory(publicPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
