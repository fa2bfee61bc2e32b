package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ImageFields 提供缓存实例/图片地址/来源层级字段，供缓存与 HTTP 日志复用。
func ImageFields(cache, address, origin string) logrus.Fields {
	fields := logrus.Fields{
		"cache":   cache,
		"address": address,
	}
	if origin != "" {
		fields["origin"] = origin
	}
	return fields
}
