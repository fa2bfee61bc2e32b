package imagecache

import (
	"context"
	"sync/atomic"
)

// Cache resolves images by remote address. The two variants, Store and
// Fixture, are picked by the caller at construction time.
type Cache interface {
	// LoadImage returns the image for address, consulting memory, then disk,
	// then the network. Failures are always *Error.
	LoadImage(ctx context.Context, address string) (*Image, error)

	// Refresh drops every cached image; the next load of any address is a cold miss.
	Refresh(ctx context.Context) error

	// EnsureDirectoryExists is idempotent.
	EnsureDirectoryExists() error

	// Stats reports counters and disk state for diagnostics.
	Stats() Stats
}

var (
	_ Cache = (*Store)(nil)
	_ Cache = (*Fixture)(nil)
)

// Stats 汇总缓存实例的状态，供 /-/caches 诊断接口与日志输出。
type Stats struct {
	Name              string `json:"name"`
	Variant           string `json:"variant"`
	Directory         string `json:"directory,omitempty"`
	DiskReady         bool   `json:"disk_ready"`
	DiskError         string `json:"disk_error,omitempty"`
	DiskFiles         int    `json:"disk_files"`
	DiskBytes         int64  `json:"disk_bytes"`
	MemoryEntries     int    `json:"memory_entries"`
	Generation        uint64 `json:"generation"`
	MemoryHits        uint64 `json:"memory_hits"`
	DiskHits          uint64 `json:"disk_hits"`
	NetworkFetches    uint64 `json:"network_fetches"` // 网络往返次数，含失败与取消
	Failures          uint64 `json:"failures"`
	Cancellations     uint64 `json:"cancellations"`
	DiskWriteFailures uint64 `json:"disk_write_failures"`
}

type counters struct {
	memoryHits        atomic.Uint64
	diskHits          atomic.Uint64
	networkFetches    atomic.Uint64
	failures          atomic.Uint64
	cancellations     atomic.Uint64
	diskWriteFailures atomic.Uint64
}

// record 统计一次失败；取消单独计数，不算作真正的失败。
func (c *counters) record(err error) error {
	if IsCancelled(err) {
		c.cancellations.Add(1)
	} else {
		c.failures.Add(1)
	}
	return err
}

func (c *counters) fill(s *Stats) {
	s.MemoryHits = c.memoryHits.Load()
	s.DiskHits = c.diskHits.Load()
	s.NetworkFetches = c.networkFetches.Load()
	s.Failures = c.failures.Load()
	s.Cancellations = c.cancellations.Load()
	s.DiskWriteFailures = c.diskWriteFailures.Load()
}
