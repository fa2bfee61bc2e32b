package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 缓存实例的两种形态：real 走内存/磁盘/网络三级，fixture 只读取本地样例图片。
const (
	ModeReal    = "real"
	ModeFixture = "fixture"
)

// GlobalConfig 描述全局运行时行为，所有缓存实例共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	MaxImageSize    int64    `mapstructure:"MaxImageSize"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	UserAgent       string   `mapstructure:"UserAgent"`
	ClientMaxAge    Duration `mapstructure:"ClientMaxAge"`
}

// CacheConfig 声明一个独立的图片缓存实例，Path 决定其私有磁盘目录。
type CacheConfig struct {
	Name         string   `mapstructure:"Name"`
	Path         string   `mapstructure:"Path"`
	Mode         string   `mapstructure:"Mode"`
	FixtureDir   string   `mapstructure:"FixtureDir"`
	AllowedHosts []string `mapstructure:"AllowedHosts"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Caches []CacheConfig `mapstructure:"Cache"`
}

// IsFixture 表示该实例是否使用本地样例图片。
func (c CacheConfig) IsFixture() bool {
	return c.Mode == ModeFixture
}

// AllowsHost 判断图片地址的 Host 是否在白名单内；未配置白名单时放行全部。
func (c CacheConfig) AllowsHost(host string) bool {
	if len(c.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range c.AllowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}

// CacheSummaries 返回所有缓存实例的摘要，例如 thumbnails:real，用于启动日志。
func CacheSummaries(caches []CacheConfig) []string {
	if len(caches) == 0 {
		return nil
	}
	result := make([]string, len(caches))
	for i, cache := range caches {
		result[i] = fmt.Sprintf("%s:%s", cache.Name, cache.Mode)
	}
	return result
}
