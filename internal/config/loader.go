package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未指定 -config 时尝试读取的配置文件，不存在时仅使用默认值与环境变量。
const DefaultPath = "config.toml"

// envBindings 把配置键映射到环境变量，第一个名字兼容旧版部署脚本。
var envBindings = map[string][]string{
	"ListenHost":      {"HOST", "TAO_TRACKER_HOST"},
	"ListenPort":      {"PORT", "TAO_TRACKER_PORT"},
	"LogLevel":        {"LOG_LEVEL", "TAO_TRACKER_LOG_LEVEL"},
	"LogFilePath":     {"TAO_TRACKER_LOG_FILE"},
	"Network":         {"BITTENSOR_NETWORK", "TAO_TRACKER_NETWORK"},
	"Endpoints":       {"TAO_TRACKER_ENDPOINTS"},
	"PriceAPI":        {"TAO_TRACKER_PRICE_API"},
	"SubnetNamesURL":  {"TAO_TRACKER_SUBNET_NAMES_URL"},
	"SubnetCacheTTL":  {"SUBNET_CACHE_TTL", "TAO_TRACKER_SUBNET_CACHE_TTL"},
	"PriceCacheTTL":   {"PRICE_CACHE_TTL", "TAO_TRACKER_PRICE_CACHE_TTL"},
	"WalletCacheTTL":  {"WALLET_CACHE_TTL", "TAO_TRACKER_WALLET_CACHE_TTL"},
	"BlockCacheTTL":   {"TAO_TRACKER_BLOCK_CACHE_TTL"},
	"NamesCacheTTL":   {"TAO_TRACKER_NAMES_CACHE_TTL"},
	"RefreshInterval": {"REFRESH_INTERVAL", "TAO_TRACKER_REFRESH_INTERVAL"},
	"UpstreamTimeout": {"TAO_TRACKER_UPSTREAM_TIMEOUT"},
	"WalletCacheSize": {"TAO_TRACKER_WALLET_CACHE_SIZE"},
	"SingleFlight":    {"TAO_TRACKER_SINGLE_FLIGHT"},
	"OTLPEndpoint":    {"TAO_TRACKER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Load 读取可选的 TOML 配置文件与环境变量（含 .env），注入默认值并完成校验。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !(path == DefaultPath && isMissingFile(path)) {
				return nil, fmt.Errorf("读取配置失败: %w", err)
			}
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return nil
}

func isMissingFile(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func bindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenHost", "0.0.0.0")
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Network", "finney")
	v.SetDefault("PriceAPI", "https://api.coingecko.com/api/v3")
	v.SetDefault("SubnetNamesURL", "https://raw.githubusercontent.com/taostat/subnets-infos/main/subnets.json")
	v.SetDefault("SubnetCacheTTL", 300)
	v.SetDefault("PriceCacheTTL", 30)
	v.SetDefault("WalletCacheTTL", 120)
	v.SetDefault("BlockCacheTTL", 12)
	v.SetDefault("NamesCacheTTL", "24h")
	v.SetDefault("RefreshInterval", 300)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("WalletCacheSize", 1024)
	v.SetDefault("SingleFlight", true)
}

// applyDefaults 兜底处理显式写成 0 的必填项；RefreshInterval=0 表示关闭后台刷新，保持原值。
func applyDefaults(c *Config) {
	if c.ListenPort == 0 {
		c.ListenPort = 5000
	}
	if c.SubnetCacheTTL.DurationValue() == 0 {
		c.SubnetCacheTTL = Duration(5 * time.Minute)
	}
	if c.PriceCacheTTL.DurationValue() == 0 {
		c.PriceCacheTTL = Duration(30 * time.Second)
	}
	if c.WalletCacheTTL.DurationValue() == 0 {
		c.WalletCacheTTL = Duration(2 * time.Minute)
	}
	if c.UpstreamTimeout.DurationValue() == 0 {
		c.UpstreamTimeout = Duration(30 * time.Second)
	}
	if c.RefreshInterval.DurationValue() < 0 {
		c.RefreshInterval = Duration(0)
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
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
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
