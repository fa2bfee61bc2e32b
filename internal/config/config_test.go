package config

import (
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.InitialBackoff.DurationValue() == 0 {
		t.Fatalf("InitialBackoff 应该自动填充默认值")
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("UpstreamTimeout 应当被解析，得到 %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Global.StoragePath == "" {
		t.Fatalf("StoragePath 应该被保留")
	}
	if cfg.Global.ListenPort == 0 {
		t.Fatalf("ListenPort 应当被解析")
	}
	if len(cfg.Caches) != 2 {
		t.Fatalf("应解析出两个缓存实例，得到 %d", len(cfg.Caches))
	}
	if cfg.Caches[0].Path != "thumbnails" {
		t.Fatalf("未设置 Path 时应退回 Name，得到 %s", cfg.Caches[0].Path)
	}
	if cfg.Caches[0].Mode != ModeReal {
		t.Fatalf("未设置 Mode 时应为 real，得到 %s", cfg.Caches[0].Mode)
	}
	if cfg.Caches[1].Path != "photos-large" {
		t.Fatalf("显式 Path 应被保留，得到 %s", cfg.Caches[1].Path)
	}
}

func TestValidateRejectsBadCache(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestCachePathValidation(t *testing.T) {
	testCases := []struct {
		name      string
		path      string
		shouldErr bool
	}{
		{"plain ok", "thumbnails", false},
		{"dashed ok", "recipe-photos", false},
		{"nested", "a/b", true},
		{"parent", "..", true},
		{"backslash", `a\b`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Caches[0].Path = tc.path
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for path %q", tc.path)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for path %q: %v", tc.path, err)
			}
		})
	}
}

func TestValidateRejectsSharedPath(t *testing.T) {
	cfg := validConfig()
	cfg.Caches = append(cfg.Caches, CacheConfig{Name: "photos", Path: "thumbnails", Mode: ModeReal})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("两个缓存共用目录时应报错")
	}
}

func TestValidateFixtureRequiresDir(t *testing.T) {
	cfg := validConfig()
	cfg.Caches[0].Mode = ModeFixture
	if err := cfg.Validate(); err == nil {
		t.Fatalf("fixture 模式缺少 FixtureDir 时应报错")
	}
	cfg.Caches[0].FixtureDir = "./fixtures"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture 配置应通过: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Caches[0].Mode = "remote"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("未知 Mode 应报错")
	}
}

func TestAllowsHost(t *testing.T) {
	open := CacheConfig{}
	if !open.AllowsHost("example.com") {
		t.Fatalf("未配置白名单时应放行")
	}
	restricted := CacheConfig{AllowedHosts: []string{"cdn.example.com"}}
	if !restricted.AllowsHost("CDN.example.com.") {
		t.Fatalf("白名单匹配应忽略大小写与末尾的点")
	}
	if restricted.AllowsHost("evil.example.com") {
		t.Fatalf("白名单外的 Host 应被拒绝")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./data",
			MaxImageSize:    1024,
			MaxRetries:      1,
			InitialBackoff:  Duration(time.Second),
			UpstreamTimeout: Duration(time.Second),
		},
		Caches: []CacheConfig{
			{
				Name: "thumbnails",
				Path: "thumbnails",
				Mode: ModeReal,
			},
		},
	}
}
