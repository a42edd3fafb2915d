package tracker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/config"
	"github.com/tao-tracker/tao-tracker/internal/pricing"
	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

// Build 按配置组装真实依赖：substrate 客户端、名称源、CoinGecko 客户端、
// 固定槽位使用的内存 Store 以及钱包槽位使用的有界 Store。
// 返回的 closer 释放链上连接与有界 Store。
func Build(cfg *config.Config, logger *logrus.Logger, httpClient *http.Client) (*Service, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}

	client, err := substrate.NewClient(cfg.RPCEndpoints(), logger, cfg.UpstreamTimeout.DurationValue())
	if err != nil {
		return nil, nil, fmt.Errorf("rpc client: %w", err)
	}
	fetcher, err := bittensor.NewFetcher(client, logger)
	if err != nil {
		return nil, nil, err
	}
	names, err := bittensor.NewNameSource(cfg.SubnetNamesURL, httpClient)
	if err != nil {
		return nil, nil, err
	}
	prices, err := pricing.NewClient(cfg.PriceAPI, httpClient, logger)
	if err != nil {
		return nil, nil, err
	}

	slots, err := cache.NewCoordinator(cache.NewMemoryStore(), logger, cache.WithSingleFlight(cfg.SingleFlight))
	if err != nil {
		return nil, nil, err
	}
	walletStore, err := cache.NewBoundedStore(cfg.WalletCacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet store: %w", err)
	}
	wallets, err := cache.NewCoordinator(walletStore, logger, cache.WithSingleFlight(cfg.SingleFlight))
	if err != nil {
		walletStore.Close()
		return nil, nil, err
	}

	svc, err := New(Options{
		Logger:   logger,
		Network:  cfg.Network,
		TTLs:     TTLsFromConfig(cfg),
		Slots:    slots,
		Wallets:  wallets,
		Chain:    fetcher,
		Names:    names,
		Prices:   prices,
		Interval: cfg.RefreshInterval.DurationValue(),
	})
	if err != nil {
		walletStore.Close()
		return nil, nil, err
	}

	closer := func() error {
		walletStore.Close()
		return client.Close()
	}
	return svc, closer, nil
}
