package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/recordcache/internal/cache"
)

type fakeSource struct {
	stats cache.Stats
	size  int64
}

func (f *fakeSource) Stats() cache.Stats        { return f.stats }
func (f *fakeSource) TotalSize() (int64, error) { return f.size, nil }

func TestCollectorPublishesSnapshot(t *testing.T) {
	source := &fakeSource{
		stats: cache.Stats{
			MemoryHits:         3,
			DiskHits:           2,
			Misses:             1,
			CurrentMemoryItems: 4,
			CurrentDiskItems:   9,
		},
		size: 512,
	}
	c := NewCollector(source, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("memory")); got != 3 {
		t.Errorf("expected memory hits gauge 3, got %v", got)
	}
	if got := testutil.ToFloat64(CacheItems.WithLabelValues("disk")); got != 9 {
		t.Errorf("expected disk items gauge 9, got %v", got)
	}
	if got := testutil.ToFloat64(CacheSizeBytes); got != 512 {
		t.Errorf("expected size gauge 512, got %v", got)
	}
}

func TestCollectorStop(t *testing.T) {
	c := NewCollector(&fakeSource{}, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestCollectorContextCancel(t *testing.T) {
	c := NewCollector(&fakeSource{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on context cancel")
	}
}
