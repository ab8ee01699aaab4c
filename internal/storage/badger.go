package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"vaultclip/internal/domain"
)

const imagePrefix = "image:"

// BadgerImageCache implements ImageCache using BadgerDB.
type BadgerImageCache struct {
	db  *badger.DB
	log logrus.FieldLogger
	now func() time.Time
}

// NewBadgerImageCache opens (or creates) the cache database at dbPath.
func NewBadgerImageCache(dbPath string, logger logrus.FieldLogger) (*BadgerImageCache, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerImageCache{
		db:  db,
		log: logger.WithField("component", "image_cache"),
		now: time.Now,
	}, nil
}

// Close closes the BadgerDB database.
func (c *BadgerImageCache) Close() error {
	c.log.Info("Closing BadgerDB...")
	if err := c.db.Close(); err != nil {
		c.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	c.log.Info("BadgerDB closed.")
	return nil
}

// Format: image:{batchKey}:{url}
func imageKey(batchKey, url string) []byte {
	return []byte(imagePrefix + batchKey + ":" + url)
}

func batchPrefix(batchKey string) []byte {
	return []byte(imagePrefix + batchKey + ":")
}

func (c *BadgerImageCache) StoreImages(ctx context.Context, batchKey string, images []domain.CachedImage) (int, error) {
	log := c.log.WithFields(logrus.Fields{"batch_key": batchKey, "count": len(images)})
	if batchKey == "" {
		return 0, errors.New("batch key is required")
	}

	now := c.now()
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	stored := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if img.URL == "" || img.DataURL == "" {
			continue
		}
		img.BatchKey = batchKey
		if img.StoredAt.IsZero() {
			img.StoredAt = now
		}
		val, err := json.Marshal(img)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal image: %w", err)
		}
		if err := wb.Set(imageKey(batchKey, img.URL), val); err != nil {
			log.WithError(err).Error("Failed to queue image write")
			return 0, fmt.Errorf("failed to store image %s: %w", img.URL, err)
		}
		stored++
	}
	if err := wb.Flush(); err != nil {
		log.WithError(err).Error("Failed to flush image batch")
		return 0, fmt.Errorf("failed to store images: %w", err)
	}

	log.WithField("stored", stored).Info("Images cached")
	return stored, nil
}

// scan calls fn for every cached image under prefix.
func (c *BadgerImageCache) scan(prefix []byte, fn func(key []byte, img domain.CachedImage) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var img domain.CachedImage
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &img)
			})
			if err != nil {
				return fmt.Errorf("failed to decode image for key %s: %w", string(key), err)
			}
			if err := fn(key, img); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerImageCache) GetImages(ctx context.Context) (map[string]string, error) {
	images := map[string]string{}
	newest := map[string]time.Time{}

	err := c.scan([]byte(imagePrefix), func(_ []byte, img domain.CachedImage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen, ok := newest[img.URL]; ok && !img.StoredAt.After(seen) {
			return nil
		}
		newest[img.URL] = img.StoredAt
		images[img.URL] = img.DataURL
		return nil
	})
	if err != nil {
		c.log.WithError(err).Error("Failed to read cached images")
		return nil, fmt.Errorf("failed to get images: %w", err)
	}

	c.log.WithField("count", len(images)).Info("Retrieved cached images")
	return images, nil
}

func (c *BadgerImageCache) GetBatch(ctx context.Context, batchKey string) (map[string]string, error) {
	images := map[string]string{}
	err := c.scan(batchPrefix(batchKey), func(_ []byte, img domain.CachedImage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		images[img.URL] = img.DataURL
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get image batch %s: %w", batchKey, err)
	}
	return images, nil
}

func (c *BadgerImageCache) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := c.now().Add(-maxAge)

	var stale [][]byte
	err := c.scan([]byte(imagePrefix), func(key []byte, img domain.CachedImage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if img.StoredAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan cached images: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete cached image: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to purge cached images: %w", err)
	}

	c.log.WithFields(logrus.Fields{"deleted": len(stale), "max_age": maxAge}).Info("Purged stale images")
	return len(stale), nil
}

// RunGC reclaims value-log space every interval until ctx is cancelled.
func (c *BadgerImageCache) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := c.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				c.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite):
				c.log.Debug("BadgerDB GC: No rewrite needed")
			default:
				c.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			c.log.Info("Stopping BadgerDB GC routine due to context cancellation")
			return
		}
	}
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
