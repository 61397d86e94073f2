package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is one cached API response. Key is derived from the endpoint
// path plus its serialized query parameters; Data is the raw successful
// payload exactly as the server returned it.
type CacheEntry struct {
	Key       string          `db:"cache_key" json:"cacheKey"`
	Data      json.RawMessage `db:"data" json:"data"`
	URL       string          `db:"url" json:"url"`
	Timestamp int64           `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "api_cache"
}

// Age returns how long ago the entry was written.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.Timestamp, 0))
}
