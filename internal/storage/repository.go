package storage

import (
	"context"
	"time"

	"vaultclip/internal/domain"
)

// DefaultMaxAge is how long cached images are kept before a purge drops them.
const DefaultMaxAge = 24 * time.Hour

// ImageCache holds encoded images between extraction and note rendering.
// Keys are write-once: every batch gets a fresh batch key.
type ImageCache interface {
	// StoreImages writes a batch of images under batchKey and returns how
	// many were stored.
	StoreImages(ctx context.Context, batchKey string, images []domain.CachedImage) (int, error)

	// GetImages returns every cached image as URL -> data URL. When the same
	// URL was cached by several batches the newest copy wins.
	GetImages(ctx context.Context) (map[string]string, error)

	// GetBatch returns the images of a single batch as URL -> data URL.
	GetBatch(ctx context.Context, batchKey string) (map[string]string, error)

	// PurgeOlderThan deletes images stored more than maxAge ago and returns
	// the number deleted.
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	// Close gracefully shuts down the cache.
	Close() error
}
