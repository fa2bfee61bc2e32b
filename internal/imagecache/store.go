package imagecache

import (
	"context"
	"errors"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/logging"
)

// Options configures a Store.
type Options struct {
	// Name identifies the cache in logs and diagnostics.
	Name string
	// Root is the cache root; empty means os.UserCacheDir()/imagehub.
	Root string
	// Path names the private directory under Root. Distinct paths never collide.
	Path string

	Fetcher fetch.Fetcher
	Decoder Decoder
	Fs      afero.Fs
	Logger  logrus.FieldLogger
}

// Store 是真实的两级图片缓存：内存表 → 私有磁盘目录 → 网络回源，
// 每次从较慢层级取得结果后都会回写到更快的层级。
type Store struct {
	name    string
	dir     *Directory
	disk    *diskTier
	fetcher fetch.Fetcher
	decode  Decoder
	logger  logrus.FieldLogger

	// refreshMu 让 Refresh 与磁盘回写互斥：Refresh 持写锁，回写持读锁并校验代数。
	refreshMu sync.RWMutex

	mu         sync.Mutex
	memory     map[string]*Image
	generation uint64
	diskErr    error
	flights    map[string]*flight

	group singleflight.Group
	stats counters
}

// New 构建缓存实例。目录在构造时同步创建；创建失败只记录日志，
// 之后的每次加载都会重试，期间以内存 + 网络模式运行。
// 只有平台无法提供缓存根目录时才返回错误。
func New(opts Options) (*Store, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	root, err := ResolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Decoder == nil {
		opts.Decoder = DecodeImage
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Name == "" {
		opts.Name = opts.Path
	}

	dir, err := newDirectory(opts.Fs, root, opts.Path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		name:    opts.Name,
		dir:     dir,
		disk:    newDiskTier(opts.Fs),
		fetcher: opts.Fetcher,
		decode:  opts.Decoder,
		logger:  opts.Logger.WithField("cache", opts.Name),
		memory:  make(map[string]*Image),
		flights: make(map[string]*flight),
	}

	if err := s.EnsureDirectoryExists(); err != nil {
		s.logger.WithError(err).WithField("directory", dir.Path()).
			Warn("cache_directory_unavailable")
	}
	return s, nil
}

// Name returns the configured cache name.
func (s *Store) Name() string {
	return s.name
}

// Directory returns the private cache directory path.
func (s *Store) Directory() string {
	return s.dir.Path()
}

// EnsureDirectoryExists 幂等地创建缓存目录，并记录最近一次的结果供诊断使用。
func (s *Store) EnsureDirectoryExists() error {
	err := s.dir.Ensure()
	s.mu.Lock()
	s.diskErr = err
	s.mu.Unlock()
	return err
}

// LoadImage 依次查询内存、磁盘与网络，返回第一个成功的结果。
func (s *Store) LoadImage(ctx context.Context, address string) (*Image, error) {
	key, err := CanonicalAddress(address)
	if err != nil {
		return nil, s.stats.record(&Error{Kind: KindFailedToEncodeAddress, Address: address, Err: err})
	}

	if img, ok := s.lookup(key); ok {
		s.stats.memoryHits.Add(1)
		return img, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, s.stats.record(cancelledError(key, err))
	}

	img, err := s.await(ctx, key, s.currentGeneration())
	if err != nil {
		return nil, s.stats.record(err)
	}
	return img, nil
}

// Refresh 删除整个磁盘目录、清空内存表并重建空目录。删除失败只记录日志；
// 重建失败会返回 DirectoryCreationFailed。进行中的加载属于旧代，其回写会被丢弃。
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelledError("", err)
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if err := s.dir.Remove(); err != nil {
		s.logger.WithError(err).WithField("directory", s.dir.Path()).
			Warn("cache_directory_remove_failed")
	}

	s.mu.Lock()
	dropped := len(s.memory)
	s.memory = make(map[string]*Image)
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	if err := s.EnsureDirectoryExists(); err != nil {
		s.logger.WithError(err).WithField("directory", s.dir.Path()).
			Error("cache_directory_recreate_failed")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"action":     "refresh",
		"dropped":    dropped,
		"generation": generation,
	}).Info("cache_refreshed")
	return nil
}

// Stats 返回计数器与磁盘占用快照。
func (s *Store) Stats() Stats {
	s.mu.Lock()
	stats := Stats{
		Name:          s.name,
		Variant:       "real",
		Directory:     s.dir.Path(),
		DiskReady:     s.diskErr == nil,
		MemoryEntries: len(s.memory),
		Generation:    s.generation,
	}
	if s.diskErr != nil {
		stats.DiskError = s.diskErr.Error()
	}
	s.mu.Unlock()

	if files, size, err := s.dir.Usage(); err == nil {
		stats.DiskFiles = files
		stats.DiskBytes = size
	}
	s.stats.fill(&stats)
	return stats
}

// resolve 在内存未命中后执行磁盘与网络查找，由 singleflight 保证同一地址同一代只执行一次。
func (s *Store) resolve(ctx context.Context, address string, gen uint64) (*Image, error) {
	if img, ok := s.lookup(address); ok {
		return img, nil
	}

	name, err := EncodeAddress(address)
	if err != nil {
		return nil, &Error{Kind: KindFailedToEncodeAddress, Address: address, Err: err}
	}
	path := s.dir.FilePath(name)

	diskReady := true
	if err := s.EnsureDirectoryExists(); err != nil {
		diskReady = false
		s.logger.WithError(err).WithFields(logging.ImageFields(s.name, address, "")).
			Debug("cache_disk_skipped")
	}

	if diskReady {
		img, found, err := s.loadFromDisk(address, path)
		if err != nil {
			return nil, err
		}
		if found {
			s.stats.diskHits.Add(1)
			return s.remember(address, img, gen), nil
		}
	}

	return s.loadFromNetwork(ctx, address, path, gen, diskReady)
}

func (s *Store) loadFromDisk(address, path string) (*Image, bool, error) {
	present, err := s.disk.exists(path)
	if err != nil {
		return nil, false, &Error{Kind: KindFailedToReadFromDisk, Address: address, Path: path, Err: err}
	}
	if !present {
		return nil, false, nil
	}

	data, err := s.disk.read(path)
	if err != nil {
		return nil, false, &Error{Kind: KindFailedToReadFromDisk, Address: address, Path: path, Err: err}
	}

	decoded, format, ok := s.decode(data)
	if !ok {
		return nil, false, &Error{
			Kind:    KindFailedToDecodeImage,
			Address: address,
			Path:    path,
			Origin:  TierDisk,
			Bytes:   len(data),
		}
	}

	return &Image{
		Address: address,
		Format:  format,
		Data:    data,
		Decoded: decoded,
		Origin:  TierDisk,
	}, true, nil
}

func (s *Store) loadFromNetwork(ctx context.Context, address, path string, gen uint64, diskReady bool) (*Image, error) {
	s.stats.networkFetches.Add(1)
	data, err := s.fetcher.Fetch(ctx, address, fetch.MethodGet)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelledError(address, err)
		}
		return nil, fetchError(address, err)
	}

	decoded, format, ok := s.decode(data)
	if !ok {
		return nil, &Error{
			Kind:    KindFailedToDecodeImage,
			Address: address,
			Origin:  TierNetwork,
			Bytes:   len(data),
		}
	}

	img := &Image{
		Address: address,
		Format:  format,
		Data:    data,
		Decoded: decoded,
		Origin:  TierNetwork,
	}

	if diskReady {
		s.persist(address, path, data, gen)
	}
	return s.remember(address, img, gen), nil
}

// persist 回写磁盘；失败只记录日志与计数，已解码的图片仍然返回给调用方。
func (s *Store) persist(address, path string, data []byte, gen uint64) {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()

	fields := logging.ImageFields(s.name, address, string(TierNetwork))
	if s.currentGeneration() != gen {
		s.logger.WithFields(fields).Debug("cache_write_stale_generation")
		return
	}

	if err := s.disk.write(path, data); err != nil {
		s.stats.diskWriteFailures.Add(1)
		werr := &Error{Kind: KindFailedToWriteToDisk, Address: address, Path: path, Err: err}
		s.logger.WithError(werr).WithFields(fields).Warn("cache_write_failed")
		return
	}

	fields["size"] = humanize.IBytes(uint64(len(data)))
	s.logger.WithFields(fields).Debug("cache_write_done")
}

// remember 写入内存表；若期间发生过 Refresh 则丢弃。已有条目时返回已有值，保证同一地址始终得到同一实例。
func (s *Store) remember(address string, img *Image, gen uint64) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return img
	}
	if existing, ok := s.memory[address]; ok {
		return existing
	}
	s.memory[address] = img
	return img
}

func (s *Store) lookup(address string) (*Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.memory[address]
	return img, ok
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
