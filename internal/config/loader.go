package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// PhotoDirEnv 覆盖配置文件中的 PhotoDir。
const PhotoDirEnv = "PHOTO_DIR"

// DefaultPath 是未显式指定时读取的配置文件。
const DefaultPath = "config.toml"

// DefaultWarmupSizes 是默认预热的缩略图尺寸。
var DefaultWarmupSizes = []int{150, 300, 600, 1200, 2400}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
// path 为空且默认文件不存在时直接使用默认值。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if dir := strings.TrimSpace(os.Getenv(PhotoDirEnv)); dir != "" {
		cfg.Global.PhotoDir = dir
	}
	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absPhotos, err := filepath.Abs(cfg.Global.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析照片目录: %w", err)
	}
	cfg.Global.PhotoDir = absPhotos

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("PhotoDir", "/photos/")
	v.SetDefault("WarmupSizes", DefaultWarmupSizes)
	v.SetDefault("MaxThumbnailSize", 4096)
	v.SetDefault("ThumbnailWorkers", 0)
	v.SetDefault("WarmupWorkers", 0)
	v.SetDefault("ListingCacheEntries", 0)
	v.SetDefault("FailureRetryAfter", 0)
	v.SetDefault("IdentityHeader", "")
	v.SetDefault("MetricsEnabled", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.ThumbnailWorkers == 0 {
		g.ThumbnailWorkers = runtime.NumCPU()
	}
	if g.WarmupWorkers == 0 {
		g.WarmupWorkers = runtime.NumCPU()
	}
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	g.IdentityHeader = strings.TrimSpace(g.IdentityHeader)
	if len(g.WarmupSizes) > 0 {
		sizes := slices.Clone(g.WarmupSizes)
		slices.Sort(sizes)
		g.WarmupSizes = slices.Compact(sizes)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %w", err)
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
