package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.MaxImageSize <= 0 {
		return newFieldError("Global.MaxImageSize", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Caches) == 0 {
		return errors.New("至少需要配置一个 Cache")
	}

	seenNames := map[string]struct{}{}
	seenPaths := map[string]string{}
	for i := range c.Caches {
		cache := &c.Caches[i]
		if cache.Name == "" {
			return newFieldError("Cache[].Name", "不能为空")
		}
		if _, exists := seenNames[cache.Name]; exists {
			return newFieldError(cacheField(cache.Name, "Name"), "重复")
		}
		seenNames[cache.Name] = struct{}{}

		if err := validatePathComponent(cache.Path); err != nil {
			return fmt.Errorf("%s: %w", cacheField(cache.Name, "Path"), err)
		}
		if owner, exists := seenPaths[cache.Path]; exists {
			return newFieldError(cacheField(cache.Name, "Path"), fmt.Sprintf("与 %s 共用目录", owner))
		}
		seenPaths[cache.Path] = cache.Name

		switch cache.Mode {
		case ModeReal, "":
		case ModeFixture:
			if strings.TrimSpace(cache.FixtureDir) == "" {
				return newFieldError(cacheField(cache.Name, "FixtureDir"), "fixture 模式必须指定样例目录")
			}
		default:
			return newFieldError(cacheField(cache.Name, "Mode"), "仅支持 real/fixture")
		}

		for _, host := range cache.AllowedHosts {
			if err := validateHost(host); err != nil {
				return fmt.Errorf("%s: %w", cacheField(cache.Name, "AllowedHosts"), err)
			}
		}
	}

	return nil
}

// validatePathComponent 确保缓存目录只是根目录下的一层名称，避免不同实例互相覆盖。
func validatePathComponent(p string) error {
	if p == "" {
		return errors.New("Path 不能为空")
	}
	if p == "." || p == ".." {
		return errors.New("Path 不能是 . 或 ..")
	}
	if strings.ContainsAny(p, `/\`) || filepath.Base(p) != p {
		return errors.New("Path 只能是单层目录名")
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http") && strings.Contains(host, ":") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}
