// Package cache implements a thread-safe, two-tier LRU cache for typed,
// versioned records. Decoded records live in a bounded in-memory tier;
// serialized records live in a SQLite-backed tier which is the source of
// truth. Every key in memory is also on disk with the same timestamp and
// size; evicting a key from disk cascades into memory.
//
// Eviction is strictly least-recently-used with deterministic tie-breaking:
// victims leave a tier in (timestamp asc, key asc) order, one at a time.
// Expiration is evaluated only on access; there is no background sweep.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/recordcache/internal/store"
)

// Config is the immutable construction-time configuration of a cache.
type Config struct {
	// Path is the SQLite database location. ":memory:" is accepted.
	Path string

	MaxMemoryItems     int64
	MaxMemorySizeBytes int64
	MaxDiskItems       int64
	MaxDiskSizeBytes   int64

	MemoryTTLSeconds float64
	DiskTTLSeconds   float64

	// MaxItemSizeBytes bounds what the memory tier will hold. Larger items
	// stay disk-only and are never promoted.
	MaxItemSizeBytes int64

	// Logger receives trace-level diagnostics (evictions, schema mismatches,
	// decode failures, TTL discoveries). Nil falls back to slog.Default();
	// behavior is identical either way.
	Logger *slog.Logger
}

func (cfg *Config) validate() error {
	if cfg.Path == "" {
		return fmt.Errorf("cache: config missing database path")
	}
	for _, limit := range []struct {
		name  string
		value int64
	}{
		{"MaxMemoryItems", cfg.MaxMemoryItems},
		{"MaxMemorySizeBytes", cfg.MaxMemorySizeBytes},
		{"MaxDiskItems", cfg.MaxDiskItems},
		{"MaxDiskSizeBytes", cfg.MaxDiskSizeBytes},
		{"MaxItemSizeBytes", cfg.MaxItemSizeBytes},
	} {
		if limit.value <= 0 {
			return fmt.Errorf("cache: config %s must be positive, got %d", limit.name, limit.value)
		}
	}
	if cfg.MemoryTTLSeconds <= 0 || cfg.DiskTTLSeconds <= 0 {
		return fmt.Errorf("cache: config TTLs must be positive")
	}
	return nil
}

// Cache is a two-tier cache bound to one record type R. All methods are safe
// for concurrent use; a single readers/writer lock serializes visible effects.
type Cache[R Record] struct {
	mu sync.RWMutex

	cfg    Config
	log    *slog.Logger
	store  *store.Store
	memory *memoryTier[R]
	decode DecodeFunc[R]

	// expected schema version, read once from R's zero value at Open.
	schemaVersion string

	// Disk tier gauges, maintained alongside every store mutation so the
	// eviction loop and Stats never re-query totals.
	diskCount int64
	diskSize  int64

	stats  Stats
	closed bool
}

// Open creates or opens a cache at cfg.Path. Rows whose schema version
// differs from R's are deleted, then the disk tier is evicted down to its
// limits so the initial state already satisfies them.
func Open[R Record](ctx context.Context, cfg Config, decode DecodeFunc[R]) (*Cache[R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if decode == nil {
		return nil, fmt.Errorf("cache: nil decode function")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var zero R
	version := zero.SchemaVersion()
	if version == "" {
		return nil, ErrMissingSchemaVersion
	}

	st, err := store.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c := &Cache[R]{
		cfg:           cfg,
		log:           cfg.Logger,
		store:         st,
		memory:        newMemoryTier[R](),
		decode:        decode,
		schemaVersion: version,
	}

	if err := c.initialize(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache[R]) initialize(ctx context.Context) error {
	removed, err := c.store.DeleteSchemaMismatch(ctx, c.schemaVersion)
	if err != nil {
		return fmt.Errorf("cache: startup cleanup: %w", err)
	}
	if removed > 0 {
		c.log.Debug("removed entries with stale schema version",
			"removed", removed, "expected_version", c.schemaVersion)
	}

	count, err := c.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("cache: startup count: %w", err)
	}
	size, err := c.store.SumSize(ctx)
	if err != nil {
		return fmt.Errorf("cache: startup size: %w", err)
	}
	c.diskCount, c.diskSize = count, size

	if _, err := c.evictDiskLocked(ctx); err != nil {
		return fmt.Errorf("cache: startup eviction: %w", err)
	}
	return nil
}

// now resolves the optional timestamp override; absent, it reads the wall
// clock once, as real seconds since epoch.
func now(at []float64) float64 {
	if len(at) > 0 {
		return at[0]
	}
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func expired(ts, now, ttl float64) bool {
	return now-ts > ttl
}

// Put stores value under key, writing through to disk first. The optional
// trailing timestamp overrides the wall clock (seconds since epoch); at most
// one override is honored.
func (c *Cache[R]) Put(ctx context.Context, key string, value R, at ...float64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ts := now(at)

	encoded, err := value.Encode()
	if err != nil {
		return fmt.Errorf("cache: encode record for %q: %w", key, err)
	}
	size := int64(len(encoded))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if size > c.cfg.MaxDiskSizeBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrItemTooLarge, size, c.cfg.MaxDiskSizeBytes)
	}

	prevSize, replaced, err := c.store.Write(ctx, store.Entry{
		Key:           key,
		Value:         encoded,
		Timestamp:     ts,
		SchemaVersion: c.schemaVersion,
		Size:          size,
	})
	if err != nil {
		return fmt.Errorf("cache: put %q: %w", key, err)
	}
	if replaced {
		c.diskSize += size - prevSize
	} else {
		c.diskCount++
		c.diskSize += size
	}

	victims, err := c.evictDiskLocked(ctx)
	if err != nil {
		return fmt.Errorf("cache: put %q: %w", key, err)
	}

	// The freshly written key survives eviction unless it is itself the
	// eldest entry; only a surviving key may enter memory.
	if size <= c.cfg.MaxItemSizeBytes && !victims[key] {
		c.memory.put(key, value, ts, size)
		c.evictMemoryLocked()
	} else {
		c.memory.delete(key)
	}

	c.stats.TotalPuts++
	return nil
}

// Get returns the record stored under key, or found=false on a miss. A
// memory hit refreshes both tiers' timestamps; a disk hit refreshes the disk
// timestamp and promotes the record into memory when it fits.
func (c *Cache[R]) Get(ctx context.Context, key string, at ...float64) (R, bool, error) {
	var zero R
	if err := validateKey(key); err != nil {
		return zero, false, err
	}
	ts := now(at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return zero, false, ErrClosed
	}
	return c.getLocked(ctx, key, ts)
}

func (c *Cache[R]) getLocked(ctx context.Context, key string, ts float64) (R, bool, error) {
	var zero R

	if e, ok := c.memory.get(key); ok {
		if !expired(e.timestamp, ts, c.cfg.MemoryTTLSeconds) {
			if err := c.store.Touch(ctx, key, ts); err != nil {
				return zero, false, fmt.Errorf("cache: get %q: %w", key, err)
			}
			e.timestamp = ts
			c.stats.MemoryHits++
			c.stats.TotalGets++
			return e.record, true, nil
		}
		// Expired in memory only; the disk copy may still be live.
		c.memory.delete(key)
		c.log.Debug("memory entry expired", "key", key)
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if !ok {
		c.stats.Misses++
		c.stats.TotalGets++
		return zero, false, nil
	}

	if entry.SchemaVersion != c.schemaVersion {
		if err := c.removeBothLocked(ctx, key, entry.Size); err != nil {
			return zero, false, fmt.Errorf("cache: get %q: %w", key, err)
		}
		c.log.Debug("schema version mismatch",
			"key", key, "stored_version", entry.SchemaVersion, "expected_version", c.schemaVersion)
		c.stats.Misses++
		c.stats.TotalGets++
		return zero, false, nil
	}

	if expired(entry.Timestamp, ts, c.cfg.DiskTTLSeconds) {
		if err := c.removeBothLocked(ctx, key, entry.Size); err != nil {
			return zero, false, fmt.Errorf("cache: get %q: %w", key, err)
		}
		c.log.Debug("disk entry expired", "key", key)
		c.stats.Misses++
		c.stats.TotalGets++
		return zero, false, nil
	}

	record, err := c.decode(entry.Value)
	if err != nil {
		if rmErr := c.removeBothLocked(ctx, key, entry.Size); rmErr != nil {
			return zero, false, fmt.Errorf("cache: get %q: %w", key, rmErr)
		}
		c.log.Debug("failed to decode stored entry", "key", key, "error", err)
		c.stats.Misses++
		c.stats.TotalGets++
		return zero, false, nil
	}

	if err := c.store.Touch(ctx, key, ts); err != nil {
		return zero, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if entry.Size <= c.cfg.MaxItemSizeBytes {
		c.memory.put(key, record, ts, entry.Size)
		c.evictMemoryLocked()
	}
	c.stats.DiskHits++
	c.stats.TotalGets++
	return record, true, nil
}

// Exists reports whether key holds a live entry. Unlike Get it never refreshes
// timestamps and never moves the hit/miss counters, but entries that fail the
// TTL or schema checks are still removed.
func (c *Cache[R]) Exists(ctx context.Context, key string, at ...float64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	ts := now(at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.existsLocked(ctx, key, ts)
}

func (c *Cache[R]) existsLocked(ctx context.Context, key string, ts float64) (bool, error) {
	if e, ok := c.memory.get(key); ok {
		if !expired(e.timestamp, ts, c.cfg.MemoryTTLSeconds) {
			return true, nil
		}
		c.memory.delete(key)
		c.log.Debug("memory entry expired", "key", key)
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache: exists %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if entry.SchemaVersion != c.schemaVersion {
		if err := c.removeBothLocked(ctx, key, entry.Size); err != nil {
			return false, fmt.Errorf("cache: exists %q: %w", key, err)
		}
		c.log.Debug("schema version mismatch",
			"key", key, "stored_version", entry.SchemaVersion, "expected_version", c.schemaVersion)
		return false, nil
	}
	if expired(entry.Timestamp, ts, c.cfg.DiskTTLSeconds) {
		if err := c.removeBothLocked(ctx, key, entry.Size); err != nil {
			return false, fmt.Errorf("cache: exists %q: %w", key, err)
		}
		c.log.Debug("disk entry expired", "key", key)
		return false, nil
	}
	return true, nil
}

// Delete removes key from both tiers. A missing key is a no-op that still
// counts as one delete operation.
func (c *Cache[R]) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.memory.delete(key)
	size, existed, err := c.store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	if existed {
		c.diskCount--
		c.diskSize -= size
	}
	c.stats.TotalDeletes++
	return nil
}

// Clear removes every entry from both tiers. The monotone counters survive.
func (c *Cache[R]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	c.memory.clear()
	c.diskCount = 0
	c.diskSize = 0
	return nil
}

// PutMany stores all items with a single shared timestamp inside one disk
// transaction. On any disk error nothing is written and memory is untouched.
// Eviction runs once, after every item has been inserted.
func (c *Cache[R]) PutMany(ctx context.Context, items map[string]R, at ...float64) error {
	ts := now(at)

	// Validate and encode everything before any write.
	keys := make([]string, 0, len(items))
	for key := range items {
		if err := validateKey(key); err != nil {
			return err
		}
		keys = append(keys, key)
	}
	// Deterministic write order regardless of map iteration.
	sort.Strings(keys)

	entries := make([]store.Entry, 0, len(keys))
	for _, key := range keys {
		encoded, err := items[key].Encode()
		if err != nil {
			return fmt.Errorf("cache: encode record for %q: %w", key, err)
		}
		entries = append(entries, store.Entry{
			Key:           key,
			Value:         encoded,
			Timestamp:     ts,
			SchemaVersion: c.schemaVersion,
			Size:          int64(len(encoded)),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, e := range entries {
		if e.Size > c.cfg.MaxDiskSizeBytes {
			return fmt.Errorf("%w: %q is %d bytes > %d", ErrItemTooLarge, e.Key, e.Size, c.cfg.MaxDiskSizeBytes)
		}
	}

	added, sizeDelta, err := c.store.WriteMany(ctx, entries)
	if err != nil {
		return fmt.Errorf("cache: put many: %w", err)
	}
	c.diskCount += added
	c.diskSize += sizeDelta

	for _, e := range entries {
		if e.Size <= c.cfg.MaxItemSizeBytes {
			c.memory.put(e.Key, items[e.Key], ts, e.Size)
		} else {
			c.memory.delete(e.Key)
		}
	}

	if _, err := c.evictDiskLocked(ctx); err != nil {
		return fmt.Errorf("cache: put many: %w", err)
	}
	c.evictMemoryLocked()

	c.stats.TotalPuts += uint64(len(entries))
	return nil
}

// GetMany performs the Get protocol for each key and returns only the keys
// that were found; each key independently moves the hit, miss, and get
// counters and refreshes its own timestamps.
func (c *Cache[R]) GetMany(ctx context.Context, keys []string, at ...float64) (map[string]R, error) {
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return nil, err
		}
	}
	ts := now(at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	found := make(map[string]R, len(keys))
	for _, key := range keys {
		record, ok, err := c.getLocked(ctx, key, ts)
		if err != nil {
			return nil, err
		}
		if ok {
			found[key] = record
		}
	}
	return found, nil
}

// DeleteMany removes every named key in one disk transaction; unknown keys
// are silently skipped but still counted as delete operations.
func (c *Cache[R]) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	removed, freed, err := c.store.DeleteMany(ctx, keys)
	if err != nil {
		return fmt.Errorf("cache: delete many: %w", err)
	}
	c.diskCount -= removed
	c.diskSize -= freed
	for _, key := range keys {
		c.memory.delete(key)
	}
	c.stats.TotalDeletes += uint64(len(keys))
	return nil
}

// Count returns the number of cached entries. Disk is a superset of memory,
// so the disk total is the cache total.
func (c *Cache[R]) Count() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.diskCount, nil
}

// TotalSize returns the total stored bytes, again as the disk tier's total.
func (c *Cache[R]) TotalSize() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.diskSize, nil
}

// Stats returns a consistent snapshot of the statistics ledger.
func (c *Cache[R]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := c.stats
	snapshot.CurrentMemoryItems = c.memory.count()
	snapshot.CurrentDiskItems = c.diskCount
	return snapshot
}

// Close releases the store handle. Every later call that returns an error
// fails with ErrClosed. Stats has no error result and does not fail after
// Close: it keeps returning the monotone counters, with both gauges at zero.
func (c *Cache[R]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.memory.clear()
	c.diskCount = 0
	c.diskSize = 0
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// evictDiskLocked removes eldest disk entries one at a time until the disk
// tier satisfies both its limits, cascading each removal into memory. It
// returns the set of evicted keys.
func (c *Cache[R]) evictDiskLocked(ctx context.Context) (map[string]bool, error) {
	victims := make(map[string]bool)
	for c.diskCount > c.cfg.MaxDiskItems || c.diskSize > c.cfg.MaxDiskSizeBytes {
		oldest, err := c.store.Oldest(ctx, 1)
		if err != nil {
			return victims, err
		}
		if len(oldest) == 0 {
			break
		}
		victim := oldest[0]
		if _, _, err := c.store.Delete(ctx, victim.Key); err != nil {
			return victims, err
		}
		c.diskCount--
		c.diskSize -= victim.Size
		c.stats.DiskEvictions++
		victims[victim.Key] = true
		c.log.Debug("evicted from disk",
			"key", victim.Key, "timestamp", victim.Timestamp, "size", victim.Size)

		if c.memory.delete(victim.Key) {
			c.stats.MemoryEvictions++
			c.log.Debug("cascading eviction from memory", "key", victim.Key)
		}
	}
	return victims, nil
}

// evictMemoryLocked removes eldest memory entries until the memory tier
// satisfies both its limits. Disk is untouched.
func (c *Cache[R]) evictMemoryLocked() {
	for c.memory.count() > c.cfg.MaxMemoryItems || c.memory.size() > c.cfg.MaxMemorySizeBytes {
		key, ok := c.memory.eldest()
		if !ok {
			break
		}
		c.memory.delete(key)
		c.stats.MemoryEvictions++
		c.log.Debug("evicted from memory", "key", key)
	}
}

// removeBothLocked drops key from disk and memory after a schema mismatch or
// TTL expiry discovered during access.
func (c *Cache[R]) removeBothLocked(ctx context.Context, key string, size int64) error {
	if _, existed, err := c.store.Delete(ctx, key); err != nil {
		return err
	} else if existed {
		c.diskCount--
		c.diskSize -= size
	}
	c.memory.delete(key)
	return nil
}

