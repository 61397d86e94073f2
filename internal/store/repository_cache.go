// Package store provides repository operations for the API response cache.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/melicheck/fieldsync/internal/models"
)

// CacheStats summarizes the cache table for the debug view.
type CacheStats struct {
	Total   int               `json:"total"`
	Entries []CacheStatsEntry `json:"entries"`
}

// CacheStatsEntry is one cache row without its payload body.
type CacheStatsEntry struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Size      int    `json:"size"`
}

// PutCacheEntry upserts a cached response under its derived key.
func (r *Repository) PutCacheEntry(e *models.CacheEntry) error {
	_, err := r.db.Exec(`
	INSERT INTO api_cache (cache_key, data, url, timestamp) VALUES (?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET data=excluded.data, url=excluded.url, timestamp=excluded.timestamp`,
		e.Key, string(e.Data), e.URL, e.Timestamp)
	return err
}

// GetCacheEntry retrieves a cached response, or nil on a miss.
func (r *Repository) GetCacheEntry(key string) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var data string
	err := r.db.QueryRow(
		"SELECT cache_key, data, url, timestamp FROM api_cache WHERE cache_key = ?", key).
		Scan(&e.Key, &data, &e.URL, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Data = json.RawMessage(data)
	return &e, nil
}

// DeleteCacheEntry removes a single cached response.
func (r *Repository) DeleteCacheEntry(key string) error {
	_, err := r.db.Exec("DELETE FROM api_cache WHERE cache_key = ?", key)
	return err
}

// ClearCache removes every cached response.
func (r *Repository) ClearCache() error {
	_, err := r.db.Exec("DELETE FROM api_cache")
	return err
}

// DeleteCacheOlderThan removes entries written before the cutoff and
// returns how many were deleted.
func (r *Repository) DeleteCacheOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM api_cache WHERE timestamp < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetCacheStats returns counts and per-entry metadata for the debug view.
func (r *Repository) GetCacheStats() (*CacheStats, error) {
	stats := &CacheStats{}

	rows, err := r.db.Query("SELECT url, timestamp, length(data) FROM api_cache ORDER BY timestamp DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e CacheStatsEntry
		if err := rows.Scan(&e.URL, &e.Timestamp, &e.Size); err != nil {
			return nil, err
		}
		stats.Entries = append(stats.Entries, e)
		stats.Total++
	}
	return stats, rows.Err()
}
