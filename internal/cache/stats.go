package cache

// Stats is a snapshot of the cache's statistics ledger. The counters are
// monotone over the life of a cache instance; the Current* gauges reflect
// live tier state at snapshot time. Clear preserves the counters and zeroes
// the gauges.
type Stats struct {
	MemoryHits      uint64 `json:"memory_hits"`
	DiskHits        uint64 `json:"disk_hits"`
	Misses          uint64 `json:"misses"`
	MemoryEvictions uint64 `json:"memory_evictions"`
	DiskEvictions   uint64 `json:"disk_evictions"`
	TotalPuts       uint64 `json:"total_puts"`
	TotalGets       uint64 `json:"total_gets"`
	TotalDeletes    uint64 `json:"total_deletes"`

	CurrentMemoryItems int64 `json:"current_memory_items"`
	CurrentDiskItems   int64 `json:"current_disk_items"`
}
