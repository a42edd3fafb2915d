package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const supportedNetworkList = "finney|test"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", c.ListenPort, "必须在 1-65535")
	}
	if strings.TrimSpace(c.ListenHost) == "" {
		return newFieldError("ListenHost", "", "不能为空")
	}

	network := strings.ToLower(strings.TrimSpace(c.Network))
	if len(c.Endpoints) == 0 {
		if _, ok := networkEndpoints[network]; !ok {
			return newFieldError("Network", c.Network, "仅支持 "+supportedNetworkList+"，或显式配置 Endpoints")
		}
	}
	c.Network = network
	for i, endpoint := range c.Endpoints {
		if err := validateURL(endpoint, "ws", "wss"); err != nil {
			return newFieldError(fmt.Sprintf("Endpoints[%d]", i), endpoint, err.Error())
		}
	}

	if err := validateURL(c.PriceAPI, "http", "https"); err != nil {
		return newFieldError("PriceAPI", c.PriceAPI, err.Error())
	}
	if err := validateURL(c.SubnetNamesURL, "http", "https"); err != nil {
		return newFieldError("SubnetNamesURL", c.SubnetNamesURL, err.Error())
	}

	ttls := map[string]Duration{
		"SubnetCacheTTL":  c.SubnetCacheTTL,
		"PriceCacheTTL":   c.PriceCacheTTL,
		"WalletCacheTTL":  c.WalletCacheTTL,
		"UpstreamTimeout": c.UpstreamTimeout,
	}
	for field, value := range ttls {
		if value.DurationValue() <= 0 {
			return newFieldError(field, value.DurationValue(), "必须大于 0")
		}
	}
	if c.BlockCacheTTL.DurationValue() < 0 {
		return newFieldError("BlockCacheTTL", c.BlockCacheTTL.DurationValue(), "不能为负数")
	}
	if c.NamesCacheTTL.DurationValue() < 0 {
		return newFieldError("NamesCacheTTL", c.NamesCacheTTL.DurationValue(), "不能为负数")
	}
	if c.WalletCacheSize <= 0 {
		return newFieldError("WalletCacheSize", c.WalletCacheSize, "必须大于 0")
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	allowed := false
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("仅支持 %s", strings.Join(schemes, "/"))
	}
	if parsed.Host == "" {
		return errors.New("缺少 Host")
	}
	return nil
}
