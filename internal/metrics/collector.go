package metrics

import (
	"context"
	"time"

	"github.com/onnwee/recordcache/internal/cache"
	"github.com/onnwee/recordcache/internal/logger"
)

// Source is the slice of the cache surface the collector reads. The generic
// cache satisfies it for any record type.
type Source interface {
	Stats() cache.Stats
	TotalSize() (int64, error)
}

// Collector periodically snapshots the cache ledger into Prometheus gauges.
type Collector struct {
	source   Source
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new ledger collector.
func NewCollector(source Source, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the collection loop. It blocks until Stop is called or the
// context is canceled, so run it in its own goroutine.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) collect() {
	stats := c.source.Stats()

	CacheHits.WithLabelValues("memory").Set(float64(stats.MemoryHits))
	CacheHits.WithLabelValues("disk").Set(float64(stats.DiskHits))
	CacheMisses.Set(float64(stats.Misses))
	CacheEvictions.WithLabelValues("memory").Set(float64(stats.MemoryEvictions))
	CacheEvictions.WithLabelValues("disk").Set(float64(stats.DiskEvictions))
	CacheOperations.WithLabelValues("put").Set(float64(stats.TotalPuts))
	CacheOperations.WithLabelValues("get").Set(float64(stats.TotalGets))
	CacheOperations.WithLabelValues("delete").Set(float64(stats.TotalDeletes))
	CacheItems.WithLabelValues("memory").Set(float64(stats.CurrentMemoryItems))
	CacheItems.WithLabelValues("disk").Set(float64(stats.CurrentDiskItems))

	total, err := c.source.TotalSize()
	if err != nil {
		// The cache has been closed; leave the last published value.
		logger.Debug("skipping size gauge", "error", err)
		return
	}
	CacheSizeBytes.Set(float64(total))
}
