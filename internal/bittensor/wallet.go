package bittensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

// ValidateAddress 校验 SS58 coldkey 并返回其公钥。
func ValidateAddress(address string) ([]byte, error) {
	pub, _, err := substrate.DecodeSS58(address)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// FetchPortfolio 读取 coldkey 的余额与各子网 alpha 持仓。taoUSD 与 subnets 由调用方提供，
// 分别用于美元估值以及子网名称与 alpha 价格；缺失时按 0 与默认名称处理。
func (f *Fetcher) FetchPortfolio(ctx context.Context, coldkey string, taoUSD float64, subnets []SubnetInfo) (WalletPortfolio, error) {
	cold, err := ValidateAddress(coldkey)
	if err != nil {
		return WalletPortfolio{}, err
	}

	free, err := f.freeBalance(ctx, cold)
	if err != nil {
		return WalletPortfolio{}, err
	}
	hotkeys, err := f.hotkeys(ctx, cold)
	if err != nil {
		return WalletPortfolio{}, err
	}

	byNetuid := make(map[uint16]SubnetInfo, len(subnets))
	for _, s := range subnets {
		byNetuid[s.Netuid] = s
	}

	var stakes []SubnetStake
	for _, hot := range hotkeys {
		held, err := f.alphaByNetuid(ctx, hot, cold)
		if err != nil {
			return WalletPortfolio{}, err
		}
		hotAddr, err := substrate.EncodeSS58(hot, substrate.BittensorPrefix)
		if err != nil {
			return WalletPortfolio{}, err
		}
		for netuid, alpha := range held {
			if alpha <= 0 {
				continue
			}
			stakes = append(stakes, newStake(netuid, hotAddr, alpha, byNetuid[netuid], taoUSD))
		}
	}
	sort.Slice(stakes, func(i, j int) bool {
		if stakes[i].Netuid != stakes[j].Netuid {
			return stakes[i].Netuid < stakes[j].Netuid
		}
		return stakes[i].Hotkey < stakes[j].Hotkey
	})

	var staked, alphaValue float64
	for _, s := range stakes {
		staked += s.TaoStaked
		alphaValue += s.AlphaValueTao
	}
	total := free + staked + alphaValue

	if stakes == nil {
		stakes = []SubnetStake{}
	}
	f.logger.WithFields(logrus.Fields{
		"action":  "fetch_portfolio",
		"hotkeys": len(hotkeys),
		"stakes":  len(stakes),
	}).Debug("fetched wallet portfolio")

	return WalletPortfolio{
		Coldkey:            coldkey,
		FreeBalanceTao:     round(free, 6),
		FreeBalanceUSD:     round(free*taoUSD, 2),
		TotalStakedTao:     round(staked, 6),
		TotalAlphaValueTao: round(alphaValue, 6),
		TotalPortfolioTao:  round(total, 6),
		TotalPortfolioUSD:  round(total*taoUSD, 2),
		TaoPriceUSD:        round(taoUSD, 2),
		SubnetStakes:       stakes,
		Timestamp:          f.now(),
	}, nil
}

func newStake(netuid uint16, hotkey string, alpha float64, subnet SubnetInfo, taoUSD float64) SubnetStake {
	name, symbol := subnet.Name, subnet.Symbol
	if name == "" {
		name = fmt.Sprintf("Subnet %d", netuid)
	}
	if symbol == "" {
		symbol = fmt.Sprintf("SN%d", netuid)
	}
	valueTao := alpha * subnet.AlphaPrice
	return SubnetStake{
		Netuid:        netuid,
		SubnetName:    name,
		Symbol:        symbol,
		Hotkey:        hotkey,
		AlphaHeld:     round(alpha, 6),
		AlphaPrice:    round(subnet.AlphaPrice, 8),
		AlphaValueTao: round(valueTao, 6),
		AlphaValueUSD: round(valueTao*taoUSD, 2),
	}
}

// freeBalance 读取 System.Account 中的 free 余额（TAO）。账户不存在时为 0。
func (f *Fetcher) freeBalance(ctx context.Context, cold []byte) (float64, error) {
	key := substrate.StorageKey("System", "Account", substrate.Blake2_128Concat(cold))
	raw, ok, err := f.chain.GetStorage(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("query System.Account: %w", err)
	}
	if !ok {
		return 0, nil
	}
	d := substrate.NewDecoder(raw)
	// nonce, consumers, providers, sufficients
	if err := d.Skip(16); err != nil {
		return 0, fmt.Errorf("decode System.Account: %w", err)
	}
	freeRao, err := d.U128()
	if err != nil {
		return 0, fmt.Errorf("decode System.Account: %w", err)
	}
	v, _ := new(big.Float).SetInt(freeRao).Float64()
	return raoToTao(v), nil
}

// hotkeys 优先读取 StakingHotkeys，为空时回退到 OwnedHotkeys。
func (f *Fetcher) hotkeys(ctx context.Context, cold []byte) ([][]byte, error) {
	for _, item := range []string{"StakingHotkeys", "OwnedHotkeys"} {
		key := substrate.StorageKey(subtensorPallet, item, substrate.Blake2_128Concat(cold))
		raw, ok, err := f.chain.GetStorage(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", item, err)
		}
		if !ok {
			continue
		}
		ids, err := substrate.NewDecoder(raw).AccountIDs()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", item, err)
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, nil
}

// alphaByNetuid 列出 Alpha(hot, cold, *) 的全部条目，返回以 alpha 计的持仓。
func (f *Fetcher) alphaByNetuid(ctx context.Context, hot, cold []byte) (map[uint16]float64, error) {
	prefix := substrate.StorageKey(subtensorPallet, "Alpha", substrate.Blake2_128Concat(hot), substrate.Blake2_128Concat(cold))
	entries, err := f.chain.QueryMap(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("query Alpha: %w", err)
	}
	out := make(map[uint16]float64, len(entries))
	for _, kv := range entries {
		if kv.Value == nil || len(kv.Key) != len(prefix)+2 {
			continue
		}
		netuid := binary.LittleEndian.Uint16(kv.Key[len(prefix):])
		rao, err := substrate.NewDecoder(kv.Value).U64F64()
		if err != nil {
			return nil, fmt.Errorf("decode Alpha for netuid %d: %w", netuid, err)
		}
		out[netuid] = raoToTao(rao)
	}
	return out, nil
}
