package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 解析 "30s"、"5m" 或纯数字秒值（可带小数），字符串配置项都经由此处解码。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述服务运行参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort" validate:"min=1,max=65535"`
	LogLevel      string `mapstructure:"LogLevel" validate:"required"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize" validate:"gte=0"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups" validate:"gte=0"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// PhotoDir 是照片根目录，派生文件也写在其中。
	PhotoDir string `mapstructure:"PhotoDir" validate:"required"`
	// WarmupSizes 为首次列出图片时后台预生成的尺寸，为空表示不预热。
	WarmupSizes      []int `mapstructure:"WarmupSizes" validate:"dive,min=1"`
	MaxThumbnailSize int   `mapstructure:"MaxThumbnailSize" validate:"min=1,max=16383"`
	ThumbnailWorkers int   `mapstructure:"ThumbnailWorkers" validate:"gte=0"`
	WarmupWorkers    int   `mapstructure:"WarmupWorkers" validate:"gte=0"`

	// ListingCacheEntries 限制每个列表缓存的条目数，0 表示不限制。
	ListingCacheEntries int `mapstructure:"ListingCacheEntries" validate:"gte=0"`
	// FailureRetryAfter 为目录读取失败的重试间隔，0 表示失败结果永久缓存。
	FailureRetryAfter Duration `mapstructure:"FailureRetryAfter" validate:"gte=0"`

	// IdentityHeader 是前置认证组件写入已校验身份的请求头，留空则所有请求视为匿名。
	IdentityHeader string `mapstructure:"IdentityHeader"`
	MetricsEnabled bool   `mapstructure:"MetricsEnabled"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// WarmupEnabled 报告是否配置了预热尺寸。
func (g GlobalConfig) WarmupEnabled() bool {
	return len(g.WarmupSizes) > 0
}
