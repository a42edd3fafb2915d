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

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
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

// Config 汇总服务运行参数，启动时读取一次，之后只读。
type Config struct {
	ListenHost string `mapstructure:"ListenHost"`
	ListenPort int    `mapstructure:"ListenPort"`

	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// Network 选择 finney 或 test；Endpoints 非空时覆盖内置节点列表。
	Network   string   `mapstructure:"Network"`
	Endpoints []string `mapstructure:"Endpoints"`

	PriceAPI       string `mapstructure:"PriceAPI"`
	SubnetNamesURL string `mapstructure:"SubnetNamesURL"`

	SubnetCacheTTL  Duration `mapstructure:"SubnetCacheTTL"`
	PriceCacheTTL   Duration `mapstructure:"PriceCacheTTL"`
	WalletCacheTTL  Duration `mapstructure:"WalletCacheTTL"`
	BlockCacheTTL   Duration `mapstructure:"BlockCacheTTL"`
	NamesCacheTTL   Duration `mapstructure:"NamesCacheTTL"`
	RefreshInterval Duration `mapstructure:"RefreshInterval"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`

	WalletCacheSize int64 `mapstructure:"WalletCacheSize"`
	SingleFlight    bool  `mapstructure:"SingleFlight"`

	OTLPEndpoint string `mapstructure:"OTLPEndpoint"`
}

// ListenAddr 返回 Fiber 监听地址。
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// RPCEndpoints 返回当前网络生效的节点列表，显式配置优先。
func (c *Config) RPCEndpoints() []string {
	if len(c.Endpoints) > 0 {
		return append([]string(nil), c.Endpoints...)
	}
	if endpoints, ok := networkEndpoints[strings.ToLower(c.Network)]; ok {
		return append([]string(nil), endpoints...)
	}
	return nil
}

var networkEndpoints = map[string][]string{
	"finney": {
		"wss://entrypoint-finney.opentensor.ai:443",
		"wss://finney.opentensor.ai:443",
	},
	"test": {
		"wss://test.finney.opentensor.ai:443",
	},
}

// TTLSummary 输出各个缓存槽位的 TTL，供启动日志使用。
func (c *Config) TTLSummary() map[string]string {
	return map[string]string{
		"subnets":      c.SubnetCacheTTL.DurationValue().String(),
		"price":        c.PriceCacheTTL.DurationValue().String(),
		"wallet":       c.WalletCacheTTL.DurationValue().String(),
		"block":        c.BlockCacheTTL.DurationValue().String(),
		"subnet_names": c.NamesCacheTTL.DurationValue().String(),
	}
}
