package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TrackHound/config"
	"TrackHound/logger"
)

// Type names a cache namespace with its own default TTL.
type Type string

const (
	TypeTrackSearch Type = "track_search"
	TypeTrackInfo   Type = "track_info"
	TypeDownloadURL Type = "download_url"
	TypeUserLimits  Type = "user_limits"
	TypeUserData    Type = "user_data"
	TypeTrending    Type = "trending"
	TypeHealthCheck Type = "health_check"
)

// Level2 is the distributed tier contract. *RedisStore implements it; tests
// substitute an in-memory fake.
type Level2 interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// Stats is a point-in-time cache health snapshot.
type Stats struct {
	LocalEntries   int   `json:"localEntries"`
	LocalHits      int64 `json:"localHits"`
	LocalMisses    int64 `json:"localMisses"`
	LocalEvictions int64 `json:"localEvictions"`
	RemoteHits     int64 `json:"remoteHits"`
	RemoteMisses   int64 `json:"remoteMisses"`
	RemoteErrors   int64 `json:"remoteErrors"`
}

type localCounter struct {
	value     int64
	expiresAt time.Time
}

// TwoTier is the engine cache: a bounded local map in front of Redis.
// The cache is best-effort: remote failures are logged and swallowed,
// never surfaced to the search path.
type TwoTier struct {
	prefix      string
	local       *LocalStore
	remote      Level2 // nil when Redis is not configured
	ttls        config.CacheTTLConfig
	backfillTTL time.Duration

	mu           sync.Mutex
	counters     map[string]localCounter // Increment fallback when Redis is down
	remoteHits   int64
	remoteMisses int64
	remoteErrors int64
}

// New assembles the two-tier cache. remote may be nil; the cache then runs
// on the local tier alone.
func New(prefix string, local *LocalStore, remote Level2, ttls config.CacheTTLConfig, backfillTTL time.Duration) *TwoTier {
	if backfillTTL <= 0 {
		backfillTTL = 300 * time.Second
	}
	return &TwoTier{
		prefix:      prefix,
		local:       local,
		remote:      remote,
		ttls:        ttls,
		backfillTTL: backfillTTL,
		counters:    make(map[string]localCounter),
	}
}

// Key builds the namespaced cache key. Long literals collapse to their
// md5 so upstream-supplied ids cannot blow up key size.
func (c *TwoTier) Key(typ Type, key string) string {
	if len(key) > 100 {
		sum := md5.Sum([]byte(key))
		key = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%s:%s:%s", c.prefix, typ, key)
}

// TTLFor resolves the configured default lifetime of a cache type.
func (c *TwoTier) TTLFor(typ Type) time.Duration {
	switch typ {
	case TypeTrackSearch:
		return c.ttls.TrackSearch
	case TypeTrackInfo:
		return c.ttls.TrackInfo
	case TypeDownloadURL:
		return c.ttls.DownloadURL
	case TypeUserLimits:
		return c.ttls.UserLimits
	case TypeUserData:
		return c.ttls.UserData
	case TypeTrending:
		return c.ttls.Trending
	case TypeHealthCheck:
		return c.ttls.HealthCheck
	default:
		return 5 * time.Minute
	}
}

// Set stores a value under the type's default TTL.
func (c *TwoTier) Set(ctx context.Context, typ Type, key string, value interface{}) error {
	return c.SetWithTTL(ctx, typ, key, value, c.TTLFor(typ))
}

// SetWithTTL stores a value with an explicit lifetime in both tiers.
// A remote failure is logged and swallowed.
func (c *TwoTier) SetWithTTL(ctx context.Context, typ Type, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	full := c.Key(typ, key)
	c.local.Set(full, data, ttl)

	if c.remote != nil {
		if err := c.remote.Set(ctx, full, data, ttl); err != nil {
			c.noteRemoteError()
			logger.Warn("L2 cache write failed",
				logger.String("key", full),
				logger.ErrorField(err))
		}
	}
	return nil
}

// Get loads a value into dest. The local tier is consulted first; an L2
// hit is backfilled locally with a shortened TTL.
func (c *TwoTier) Get(ctx context.Context, typ Type, key string, dest interface{}) (bool, error) {
	full := c.Key(typ, key)

	if data, ok := c.local.Get(full); ok {
		if err := json.Unmarshal(data, dest); err != nil {
			return false, fmt.Errorf("unmarshal cached value: %w", err)
		}
		return true, nil
	}

	if c.remote == nil {
		return false, nil
	}

	data, ok, err := c.remote.Get(ctx, full)
	if err != nil {
		c.noteRemoteError()
		logger.Warn("L2 cache read failed",
			logger.String("key", full),
			logger.ErrorField(err))
		return false, nil
	}
	if !ok {
		c.noteRemoteMiss()
		return false, nil
	}
	c.noteRemoteHit()

	backfill := c.backfillTTL
	if typTTL := c.TTLFor(typ); typTTL > 0 && typTTL < backfill {
		backfill = typTTL
	}
	c.local.Set(full, data, backfill)

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return true, nil
}

// Delete removes keys from both tiers.
func (c *TwoTier) Delete(ctx context.Context, typ Type, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(typ, k)
	}
	c.local.Delete(full...)

	if c.remote == nil {
		return nil
	}
	if err := c.remote.Delete(ctx, full...); err != nil {
		c.noteRemoteError()
		return err
	}
	return nil
}

// Exists reports presence in either tier.
func (c *TwoTier) Exists(ctx context.Context, typ Type, key string) bool {
	full := c.Key(typ, key)
	if c.local.Exists(full) {
		return true
	}
	if c.remote == nil {
		return false
	}
	ok, err := c.remote.Exists(ctx, full)
	if err != nil {
		c.noteRemoteError()
		return false
	}
	return ok
}

// SetMany stores a batch under the type's default TTL.
func (c *TwoTier) SetMany(ctx context.Context, typ Type, values map[string]interface{}) error {
	ttl := c.TTLFor(typ)
	if ttl <= 0 || len(values) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal cache value %q: %w", k, err)
		}
		full := c.Key(typ, k)
		encoded[full] = data
		c.local.Set(full, data, ttl)
	}

	if c.remote != nil {
		if err := c.remote.SetMany(ctx, encoded, ttl); err != nil {
			c.noteRemoteError()
			logger.Warn("L2 cache batch write failed", logger.ErrorField(err))
		}
	}
	return nil
}

// GetMany returns raw JSON payloads for the keys found in either tier.
func (c *TwoTier) GetMany(ctx context.Context, typ Type, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	var missing []string
	fullToShort := make(map[string]string, len(keys))

	for _, k := range keys {
		full := c.Key(typ, k)
		if data, ok := c.local.Get(full); ok {
			out[k] = json.RawMessage(data)
			continue
		}
		missing = append(missing, full)
		fullToShort[full] = k
	}

	if c.remote == nil || len(missing) == 0 {
		return out, nil
	}

	remote, err := c.remote.GetMany(ctx, missing)
	if err != nil {
		c.noteRemoteError()
		logger.Warn("L2 cache batch read failed", logger.ErrorField(err))
		return out, nil
	}
	for full, data := range remote {
		short := fullToShort[full]
		out[short] = json.RawMessage(data)
		c.local.Set(full, data, c.backfillTTL)
	}
	return out, nil
}

// Increment atomically adjusts a counter, keeping a local fallback so
// limits still roughly hold while Redis is down.
func (c *TwoTier) Increment(ctx context.Context, typ Type, key string, delta int64, ttl time.Duration) (int64, error) {
	full := c.Key(typ, key)
	if ttl <= 0 {
		ttl = c.TTLFor(typ)
	}

	if c.remote != nil {
		n, err := c.remote.IncrBy(ctx, full, delta, ttl)
		if err == nil {
			return n, nil
		}
		c.noteRemoteError()
		logger.Warn("L2 counter failed, using local fallback",
			logger.String("key", full),
			logger.ErrorField(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	entry, ok := c.counters[full]
	if !ok || !now.Before(entry.expiresAt) {
		entry = localCounter{expiresAt: now.Add(ttl)}
	}
	entry.value += delta
	c.counters[full] = entry
	return entry.value, nil
}

// ClearByPattern drops every key of the type matching the glob pattern.
// The count reflects the remote tier when one is configured, since that
// is what every instance shares; otherwise the local removals.
func (c *TwoTier) ClearByPattern(ctx context.Context, typ Type, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	full := fmt.Sprintf("%s:%s:%s", c.prefix, typ, pattern)
	localRemoved := c.local.DeleteByPattern(full)

	if c.remote == nil {
		return localRemoved, nil
	}
	removed, err := c.remote.DeleteByPattern(ctx, full)
	if err != nil {
		c.noteRemoteError()
		return removed, err
	}
	return removed, nil
}

// Stats snapshots both tiers' counters.
func (c *TwoTier) Stats() Stats {
	hits, misses, evictions := c.local.Counters()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		LocalEntries:   c.local.Len(),
		LocalHits:      hits,
		LocalMisses:    misses,
		LocalEvictions: evictions,
		RemoteHits:     c.remoteHits,
		RemoteMisses:   c.remoteMisses,
		RemoteErrors:   c.remoteErrors,
	}
}

func (c *TwoTier) noteRemoteHit() {
	c.mu.Lock()
	c.remoteHits++
	c.mu.Unlock()
}

func (c *TwoTier) noteRemoteMiss() {
	c.mu.Lock()
	c.remoteMisses++
	c.mu.Unlock()
}

func (c *TwoTier) noteRemoteError() {
	c.mu.Lock()
	c.remoteErrors++
	c.mu.Unlock()
}
