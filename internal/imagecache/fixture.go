package imagecache

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/any-hub/imagehub/internal/fetch"
)

// Fixture 是离线使用的缓存变体：图片来自预先加载的样例字节，从不访问网络也不写磁盘。
// 未登记的地址按上游 404 处理，便于演示与测试失败分支。
type Fixture struct {
	name   string
	decode Decoder

	mu     sync.Mutex
	raw    map[string][]byte
	memory map[string]*Image
	stats  counters
}

// NewFixture 以 address → 原始字节 构建样例缓存；无法规范化的地址会被忽略。
func NewFixture(name string, images map[string][]byte, decoder Decoder) *Fixture {
	if decoder == nil {
		decoder = DecodeImage
	}
	raw := make(map[string][]byte, len(images))
	for address, data := range images {
		key, err := CanonicalAddress(address)
		if err != nil {
			continue
		}
		raw[key] = data
	}
	return &Fixture{
		name:   name,
		decode: decoder,
		raw:    raw,
		memory: make(map[string]*Image),
	}
}

// LoadFixtureDir 读取 dir 下的样例文件，文件名为 EncodeAddress 编码后的图片地址。
func LoadFixtureDir(fs afero.Fs, dir string) (map[string][]byte, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	images := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		address, err := DecodeFileName(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", entry.Name(), err)
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", entry.Name(), err)
		}
		images[address] = data
	}
	return images, nil
}

func (f *Fixture) LoadImage(ctx context.Context, address string) (*Image, error) {
	key, err := CanonicalAddress(address)
	if err != nil {
		return nil, f.stats.record(&Error{Kind: KindFailedToEncodeAddress, Address: address, Err: err})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if img, ok := f.memory[key]; ok {
		f.stats.memoryHits.Add(1)
		return img, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, f.stats.record(cancelledError(key, err))
	}

	data, ok := f.raw[key]
	if !ok {
		return nil, f.stats.record(fetchError(key, fetch.StatusCodeError(key, http.StatusNotFound)))
	}
	decoded, format, ok := f.decode(data)
	if !ok {
		return nil, f.stats.record(&Error{Kind: KindFailedToDecodeImage, Address: key, Origin: TierDisk, Bytes: len(data)})
	}

	f.stats.diskHits.Add(1)
	img := &Image{Address: key, Format: format, Data: data, Decoded: decoded, Origin: TierDisk}
	f.memory[key] = img
	return img, nil
}

// Refresh only forgets decoded values; the fixture bytes stay.
func (f *Fixture) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelledError("", err)
	}
	f.mu.Lock()
	f.memory = make(map[string]*Image)
	f.mu.Unlock()
	return nil
}

func (f *Fixture) EnsureDirectoryExists() error {
	return nil
}

func (f *Fixture) Stats() Stats {
	f.mu.Lock()
	stats := Stats{
		Name:          f.name,
		Variant:       "fixture",
		DiskReady:     true,
		DiskFiles:     len(f.raw),
		MemoryEntries: len(f.memory),
	}
	for _, data := range f.raw {
		stats.DiskBytes += int64(len(data))
	}
	f.mu.Unlock()
	f.stats.fill(&stats)
	return stats
}
