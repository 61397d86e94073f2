// Package cache provides the network-first-then-cache wrapper around read
// operations against the backend.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/melicheck/fieldsync/internal/errors"
	"github.com/melicheck/fieldsync/internal/logging"
	"github.com/melicheck/fieldsync/internal/models"
	"github.com/melicheck/fieldsync/internal/store"
)

// Connectivity reports whether the backend is currently reachable.
type Connectivity interface {
	Online() bool
}

// Fetcher performs the actual network read. It must be idempotent; the
// wrapper may skip calling it entirely when offline.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// Response is a read result annotated with its source.
type Response struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"fromCache"`
	CachedAt  int64           `json:"cachedAt,omitempty"`
}

// Cache wraps read operations with the network-first-then-cache strategy.
// Every successful network read is a cache write; no read ever triggers a
// network write, and entries are only invalidated explicitly.
type Cache struct {
	repo *store.Repository
	conn Connectivity
}

// New creates a Cache.
func New(repo *store.Repository, conn Connectivity) *Cache {
	return &Cache{repo: repo, conn: conn}
}

// Key derives the cache key for an endpoint and its query parameters. It is
// a pure function: identical inputs collide intentionally, differing
// parameters never do. url.Values.Encode sorts keys, which makes parameter
// order irrelevant.
func Key(endpoint string, params url.Values) string {
	endpoint = "/" + strings.Trim(endpoint, "/")
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

// Get performs a read in default mode: network first, falling back to the
// last cached response when the call fails. With no network and no cached
// entry the failure is OFFLINE_NO_CACHE; with a network failure and no
// cached entry the original error propagates unchanged.
func (c *Cache) Get(ctx context.Context, endpoint string, params url.Values, fetch Fetcher) (*Response, error) {
	return c.get(ctx, endpoint, params, fetch, false)
}

// GetCacheFirst consults the cache before the network, for callers that
// know a bulk refresh just ran and a round trip would be redundant. A miss
// falls through to default mode.
func (c *Cache) GetCacheFirst(ctx context.Context, endpoint string, params url.Values, fetch Fetcher) (*Response, error) {
	return c.get(ctx, endpoint, params, fetch, true)
}

func (c *Cache) get(ctx context.Context, endpoint string, params url.Values, fetch Fetcher, cacheFirst bool) (*Response, error) {
	key := Key(endpoint, params)

	if cacheFirst {
		if entry, err := c.repo.GetCacheEntry(key); err == nil && entry != nil {
			logging.Debug("cache first hit", logging.Fields{"key": key})
			return &Response{Data: entry.Data, FromCache: true, CachedAt: entry.Timestamp}, nil
		}
	}

	// Offline fast path: no network attempt at all.
	if !c.conn.Online() {
		entry, err := c.repo.GetCacheEntry(key)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "cache lookup failed", err)
		}
		if entry == nil {
			return nil, apperrors.New(apperrors.ErrOfflineNoCache,
				fmt.Sprintf("no cached data for %s while offline", key))
		}
		logging.Debug("serving cached data offline", logging.Fields{"key": key})
		return &Response{Data: entry.Data, FromCache: true, CachedAt: entry.Timestamp}, nil
	}

	data, err := fetch(ctx)
	if err == nil {
		c.save(key, endpoint, data)
		return &Response{Data: data}, nil
	}

	logging.Warn("network read failed, trying cache", logging.Fields{"key": key, "error": err.Error()})

	entry, lookupErr := c.repo.GetCacheEntry(key)
	if lookupErr == nil && entry != nil {
		return &Response{Data: entry.Data, FromCache: true, CachedAt: entry.Timestamp}, nil
	}

	// No cached fallback: the original failure propagates unchanged.
	return nil, err
}

func (c *Cache) save(key, endpoint string, data json.RawMessage) {
	entry := &models.CacheEntry{
		Key:       key,
		Data:      data,
		URL:       endpoint,
		Timestamp: time.Now().Unix(),
	}
	if err := c.repo.PutCacheEntry(entry); err != nil {
		// A failed cache write must not fail the read that produced it.
		logging.Error("failed to write cache entry", err, logging.Fields{"key": key})
	}
}

// SaveDirect writes a payload into the cache without a network call, for
// seeding detail entries from a list response.
func (c *Cache) SaveDirect(endpoint string, data json.RawMessage) error {
	return c.repo.PutCacheEntry(&models.CacheEntry{
		Key:       Key(endpoint, nil),
		Data:      data,
		URL:       endpoint,
		Timestamp: time.Now().Unix(),
	})
}

// CacheListItems caches each element of a JSON array under its detail
// endpoint (baseEndpoint/{id}), wrapped in the backend's result envelope
// shape so a later detail read decodes identically.
func (c *Cache) CacheListItems(listData json.RawMessage, baseEndpoint string) error {
	var items []json.RawMessage
	if err := json.Unmarshal(listData, &items); err != nil {
		return fmt.Errorf("payload is not a JSON array: %w", err)
	}

	cached := 0
	for _, item := range items {
		var idHolder struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(item, &idHolder); err != nil || idHolder.ID == 0 {
			continue
		}
		endpoint := fmt.Sprintf("%s/%d", strings.TrimRight(baseEndpoint, "/"), idHolder.ID)
		if err := c.SaveDirect(endpoint, item); err != nil {
			return err
		}
		cached++
	}

	logging.Debug("cached list items individually", logging.Fields{"base": baseEndpoint, "count": cached})
	return nil
}

// Invalidate removes a single cached response. Invalidation is the
// caller's explicit responsibility; writes never invalidate related reads
// automatically.
func (c *Cache) Invalidate(endpoint string, params url.Values) error {
	return c.repo.DeleteCacheEntry(Key(endpoint, params))
}

// Clear drops every cached response.
func (c *Cache) Clear() error {
	return c.repo.ClearCache()
}

// ClearOlderThan removes entries older than maxAge and returns how many
// were deleted.
func (c *Cache) ClearOlderThan(maxAge time.Duration) (int64, error) {
	return c.repo.DeleteCacheOlderThan(time.Now().Add(-maxAge))
}

// Stats summarizes the cache for the debug view.
func (c *Cache) Stats() (*store.CacheStats, error) {
	return c.repo.GetCacheStats()
}
