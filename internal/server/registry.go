package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/imagehub/internal/config"
	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/imagecache"
	"github.com/any-hub/imagehub/internal/logging"
)

// CacheRoute 将缓存配置与构建好的缓存实例聚合在一起，供路由/代理层直接复用。
type CacheRoute struct {
	// Config 是用户在 config.toml 中声明的 [[Cache]] 字段副本。
	Config config.CacheConfig
	// Cache 是按 Mode 选择的缓存实现（real 或 fixture）。
	Cache imagecache.Cache
	// ClientMaxAge 用于响应中的 Cache-Control。
	ClientMaxAge time.Duration
}

// RegistryOptions 注入构建缓存实例所需的依赖，测试中可替换为内存文件系统与假 Fetcher。
type RegistryOptions struct {
	Fetcher fetch.Fetcher
	Fs      afero.Fs
	Logger  logrus.FieldLogger
}

// CacheRegistry 提供缓存名称到 CacheRoute 的查询能力，所有缓存共享同一个监听端口。
type CacheRegistry struct {
	routes  map[string]*CacheRoute
	ordered []*CacheRoute
}

// NewCacheRegistry 根据配置构建全部缓存实例。调用方应在启动阶段创建一次并复用。
func NewCacheRegistry(cfg *config.Config, opts RegistryOptions) (*CacheRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	registry := &CacheRegistry{
		routes: make(map[string]*CacheRoute, len(cfg.Caches)),
	}

	for _, cacheCfg := range cfg.Caches {
		key := normalizeName(cacheCfg.Name)
		if key == "" {
			return nil, errors.New("cache name is empty")
		}
		if _, exists := registry.routes[key]; exists {
			return nil, fmt.Errorf("duplicate cache name detected for %s", key)
		}

		cache, err := buildCache(cfg, cacheCfg, opts)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", cacheCfg.Name, err)
		}

		route := &CacheRoute{
			Config:       cacheCfg,
			Cache:        cache,
			ClientMaxAge: cfg.Global.ClientMaxAge.DurationValue(),
		}
		registry.routes[key] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

func buildCache(cfg *config.Config, cacheCfg config.CacheConfig, opts RegistryOptions) (imagecache.Cache, error) {
	if cacheCfg.IsFixture() {
		images, err := imagecache.LoadFixtureDir(opts.Fs, cacheCfg.FixtureDir)
		if err != nil {
			return nil, err
		}
		return imagecache.NewFixture(cacheCfg.Name, images, nil), nil
	}

	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required for real caches")
	}
	return imagecache.New(imagecache.Options{
		Name:    cacheCfg.Name,
		Root:    cfg.Global.StoragePath,
		Path:    cacheCfg.Path,
		Fetcher: opts.Fetcher,
		Fs:      opts.Fs,
		Logger:  opts.Logger,
	})
}

// Lookup 根据缓存名称查找 CacheRoute，忽略大小写与首尾空白。
func (r *CacheRegistry) Lookup(name string) (*CacheRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[normalizeName(name)]
	return route, ok
}

// List 返回当前注册的 CacheRoute 列表（按配置定义的顺序），用于 /-/caches 输出。
func (r *CacheRegistry) List() []*CacheRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*CacheRoute(nil), r.ordered...)
}

// RefreshAll 依次刷新每个缓存实例，返回所有失败的合并错误。
func (r *CacheRegistry) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, route := range r.List() {
		if err := route.Cache.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", route.Config.Name, err))
		}
	}
	return errors.Join(errs...)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
