// Package tracker binds the cache coordinators to the chain, price and name
// sources. Every read the HTTP layer serves goes through a Service method.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
	"github.com/tao-tracker/tao-tracker/internal/cache"
	"github.com/tao-tracker/tao-tracker/internal/config"
	"github.com/tao-tracker/tao-tracker/internal/logging"
	"github.com/tao-tracker/tao-tracker/internal/pricing"
	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

// 槽位名称。钱包槽位为 WalletSlotPrefix + SS58 地址。
const (
	SlotSubnets      = "subnets"
	SlotSubnetNames  = "subnet_names"
	SlotPrice        = "price"
	SlotBlock        = "block"
	WalletSlotPrefix = "wallet:"
	subnetSlotPrefix = "subnet:"
)

var (
	// ErrInvalidAddress 表示钱包地址不是合法的 SS58。
	ErrInvalidAddress = substrate.ErrInvalidAddress
	// ErrSubnetNotFound 表示 netuid 不是活跃子网。
	ErrSubnetNotFound = bittensor.ErrSubnetNotFound
)

// ChainSource 是链上数据来源，*bittensor.Fetcher 实现了它。
type ChainSource interface {
	FetchSubnets(ctx context.Context, names map[uint16]string) ([]bittensor.SubnetInfo, error)
	FetchSubnet(ctx context.Context, netuid uint16, names map[uint16]string) (bittensor.SubnetInfo, error)
	FetchBlock(ctx context.Context) (uint64, error)
	FetchPortfolio(ctx context.Context, coldkey string, taoUSD float64, subnets []bittensor.SubnetInfo) (bittensor.WalletPortfolio, error)
}

// NameSource 提供社区维护的子网名称。
type NameSource interface {
	Fetch(ctx context.Context) (map[uint16]string, error)
}

// PriceSource 提供 TAO 报价。
type PriceSource interface {
	FetchPrice(ctx context.Context) (pricing.TaoPrice, error)
}

// TTLs 是各类槽位的有效期。
type TTLs struct {
	Subnets time.Duration
	Names   time.Duration
	Price   time.Duration
	Block   time.Duration
	Wallet  time.Duration
}

// TTLsFromConfig 从配置读取有效期。
func TTLsFromConfig(cfg *config.Config) TTLs {
	return TTLs{
		Subnets: cfg.SubnetCacheTTL.DurationValue(),
		Names:   cfg.NamesCacheTTL.DurationValue(),
		Price:   cfg.PriceCacheTTL.DurationValue(),
		Block:   cfg.BlockCacheTTL.DurationValue(),
		Wallet:  cfg.WalletCacheTTL.DurationValue(),
	}
}

// Options 是 New 的依赖。Slots 保存固定槽位，Wallets 保存按地址划分的槽位。
type Options struct {
	Logger   *logrus.Logger
	Network  string
	TTLs     TTLs
	Slots    *cache.Coordinator
	Wallets  *cache.Coordinator
	Chain    ChainSource
	Names    NameSource
	Prices   PriceSource
	Interval time.Duration
}

// Service 是进程内唯一的数据入口。
type Service struct {
	logger   *logrus.Logger
	network  string
	ttls     TTLs
	slots    *cache.Coordinator
	wallets  *cache.Coordinator
	chain    ChainSource
	names    NameSource
	prices   PriceSource
	interval time.Duration
}

// New 校验依赖并构造 Service。Names 可以为空，此时全部子网使用默认名称。
func New(opts Options) (*Service, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	case opts.Slots == nil || opts.Wallets == nil:
		return nil, errors.New("cache coordinators are required")
	case opts.Chain == nil:
		return nil, errors.New("chain source is required")
	case opts.Prices == nil:
		return nil, errors.New("price source is required")
	}
	return &Service{
		logger:   opts.Logger,
		network:  opts.Network,
		ttls:     opts.TTLs,
		slots:    opts.Slots,
		wallets:  opts.Wallets,
		chain:    opts.Chain,
		names:    opts.Names,
		prices:   opts.Prices,
		interval: opts.Interval,
	}, nil
}

// Network 返回所连接的网络名称。
func (s *Service) Network() string {
	return s.network
}

// Subnets 返回全部活跃子网，按 netuid 升序。
func (s *Service) Subnets(ctx context.Context, force bool) ([]bittensor.SubnetInfo, cache.Result, error) {
	return cache.ResolveAs(ctx, s.slots, SlotSubnets, s.ttls.Subnets, force, func(ctx context.Context) ([]bittensor.SubnetInfo, error) {
		return s.chain.FetchSubnets(ctx, s.subnetNames(ctx))
	})
}

// Emissions 是 subnets 槽位的投影，与 Subnets 共享缓存与新鲜度。
func (s *Service) Emissions(ctx context.Context, force bool) ([]bittensor.SubnetEmission, cache.Result, error) {
	subnets, res, err := s.Subnets(ctx, force)
	if err != nil {
		return nil, res, err
	}
	return bittensor.Emissions(subnets), res, nil
}

// Subnet 返回单个子网。subnets 槽位新鲜时直接在其中查找，不在其中即视为未激活；
// 否则走独立的 subnet:<netuid> 槽位单独抓取。
func (s *Service) Subnet(ctx context.Context, netuid uint16, force bool) (bittensor.SubnetInfo, cache.Result, error) {
	if !force {
		if res, ok := s.slots.Peek(SlotSubnets, s.ttls.Subnets); ok {
			if subnets, ok := res.Value.([]bittensor.SubnetInfo); ok {
				for _, subnet := range subnets {
					if subnet.Netuid == netuid {
						return subnet, res, nil
					}
				}
				return bittensor.SubnetInfo{}, cache.Result{}, fmt.Errorf("%w: netuid %d", ErrSubnetNotFound, netuid)
			}
		}
	}

	name := fmt.Sprintf("%s%d", subnetSlotPrefix, netuid)
	return cache.ResolveAs(ctx, s.slots, name, s.ttls.Subnets, force, func(ctx context.Context) (bittensor.SubnetInfo, error) {
		return s.chain.FetchSubnet(ctx, netuid, s.subnetNames(ctx))
	})
}

// Price 返回 TAO 报价。
func (s *Service) Price(ctx context.Context, force bool) (pricing.TaoPrice, cache.Result, error) {
	return cache.ResolveAs(ctx, s.slots, SlotPrice, s.ttls.Price, force, s.prices.FetchPrice)
}

// Block 返回当前区块高度。
func (s *Service) Block(ctx context.Context, force bool) (uint64, cache.Result, error) {
	return cache.ResolveAs(ctx, s.slots, SlotBlock, s.ttls.Block, force, s.chain.FetchBlock)
}

// Portfolio 返回钱包组合。地址先做 SS58 校验，非法地址不会占用槽位。
// 报价与子网数据取自各自的槽位，取不到时按 0 价格与默认名称估值。
func (s *Service) Portfolio(ctx context.Context, address string, force bool) (bittensor.WalletPortfolio, cache.Result, error) {
	if _, err := bittensor.ValidateAddress(address); err != nil {
		return bittensor.WalletPortfolio{}, cache.Result{}, err
	}
	// address 会随结果进入缓存，不能引用调用方可能复用的缓冲区。
	address = strings.Clone(address)

	name := WalletSlotPrefix + address
	return cache.ResolveAs(ctx, s.wallets, name, s.ttls.Wallet, force, func(ctx context.Context) (bittensor.WalletPortfolio, error) {
		var taoUSD float64
		if price, _, err := s.Price(ctx, false); err != nil {
			s.logger.WithFields(logging.SlotFields("portfolio_price", name)).WithError(err).
				Warn("price unavailable, valuing portfolio at zero")
		} else {
			taoUSD = price.PriceUSD
		}

		subnets, _, err := s.Subnets(ctx, false)
		if err != nil {
			s.logger.WithFields(logging.SlotFields("portfolio_subnets", name)).WithError(err).
				Warn("subnets unavailable, using default names and zero alpha price")
		}
		return s.chain.FetchPortfolio(ctx, address, taoUSD, subnets)
	})
}

// Slots 汇总两个协调器中的槽位，供诊断接口使用。
func (s *Service) Slots() []cache.SlotInfo {
	return append(s.slots.Slots(), s.wallets.Slots()...)
}

// subnetNames 读取名称槽位；拿不到时返回 nil，由调用方回退到默认名称。
func (s *Service) subnetNames(ctx context.Context) map[uint16]string {
	if s.names == nil {
		return nil
	}
	names, _, err := cache.ResolveAs(ctx, s.slots, SlotSubnetNames, s.ttls.Names, false, s.names.Fetch)
	if err != nil {
		s.logger.WithFields(logging.SlotFields("subnet_names", SlotSubnetNames)).WithError(err).
			Warn("subnet names unavailable, using defaults")
		return nil
	}
	return names
}
