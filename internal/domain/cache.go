package domain

import "time"

// CachedImage is an encoded image held in the transient image cache.
type CachedImage struct {
	URL      string    `json:"url"`
	DataURL  string    `json:"base64"`
	BatchKey string    `json:"batchKey"`
	StoredAt time.Time `json:"storedAt"`
}
