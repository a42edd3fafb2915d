// Package pricing fetches the TAO spot price from CoinGecko.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	coinID       = "bittensor"
	maxPriceBody = 1 << 20
)

// ErrCoinMissing 表示响应中没有 bittensor 条目。
var ErrCoinMissing = errors.New("bittensor missing from price response")

// TaoPrice 是一次报价。可选字段在上游缺失时为 nil。
type TaoPrice struct {
	PriceUSD         float64   `json:"price_usd"`
	PriceAUD         *float64  `json:"price_aud"`
	PriceBTC         *float64  `json:"price_btc"`
	MarketCapUSD     *float64  `json:"market_cap_usd"`
	Volume24hUSD     *float64  `json:"volume_24h_usd"`
	Change24hPercent *float64  `json:"change_24h_percent"`
	Source           string    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
}

// Client 调用 CoinGecko simple/price 接口。
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
	now     func() time.Time
}

// NewClient 构造报价客户端，baseURL 形如 https://api.coingecko.com/api/v3。
func NewClient(baseURL string, client *http.Client, logger *logrus.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("price api url is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// FetchPrice 拉取最新报价。非 2xx、无法解析或缺少 bittensor 条目都视为失败。
func (c *Client) FetchPrice(ctx context.Context) (TaoPrice, error) {
	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd,aud,btc")
	query.Set("include_market_cap", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_24hr_change", "true")
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaoPrice{}, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return TaoPrice{}, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TaoPrice{}, fmt.Errorf("fetch price: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPriceBody)).Decode(&payload); err != nil {
		return TaoPrice{}, fmt.Errorf("decode price response: %w", err)
	}
	quote, ok := payload[coinID]
	if !ok {
		c.logger.WithField("action", "fetch_price").Warn("bittensor missing from coingecko response")
		return TaoPrice{}, ErrCoinMissing
	}

	return TaoPrice{
		PriceUSD:         quote["usd"],
		PriceAUD:         optional(quote, "aud"),
		PriceBTC:         optional(quote, "btc"),
		MarketCapUSD:     optional(quote, "usd_market_cap"),
		Volume24hUSD:     optional(quote, "usd_24h_vol"),
		Change24hPercent: optional(quote, "usd_24h_change"),
		Source:           "coingecko",
		Timestamp:        c.now(),
	}, nil
}

func optional(quote map[string]float64, key string) *float64 {
	v, ok := quote[key]
	if !ok {
		return nil
	}
	return &v
}

// Value 返回可选字段的值，nil 视为 0。
func Value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
