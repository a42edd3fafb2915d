// Package chaintest seeds a substratetest node with subtensor state.
package chaintest

import (
	"encoding/binary"
	"math"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
	"github.com/tao-tracker/tao-tracker/internal/substrate/substratetest"
)

const pallet = "SubtensorModule"

// Subnet 描述一个待写入的子网，金额单位为 rao。
type Subnet struct {
	Netuid      uint16
	Inactive    bool
	EmissionRao uint64
	TaoInRao    uint64
	AlphaInRao  uint64
	BurnRao     uint64
	Price       float64
	Tempo       uint16
	Neurons     uint16
	Owner       []byte
	Symbol      string
}

// SeedSubnet 写入子网的全部存储项。
func SeedSubnet(node *substratetest.Node, s Subnet) {
	active := byte(1)
	if s.Inactive {
		active = 0
	}
	put := func(item string, value []byte) {
		node.Put(substrate.StorageKey(pallet, item, substrate.EncodeU16(s.Netuid)), value)
	}
	put("NetworksAdded", []byte{active})
	put("SubnetTaoInEmission", u64(s.EmissionRao))
	put("SubnetMovingPrice", append(u64(uint64(math.Round(s.Price*(1<<32)))), make([]byte, 8)...))
	put("SubnetTAO", u64(s.TaoInRao))
	put("SubnetAlphaIn", u64(s.AlphaInRao))
	put("Burn", u64(s.BurnRao))
	put("Tempo", substrate.EncodeU16(s.Tempo))
	put("SubnetworkN", substrate.EncodeU16(s.Neurons))
	if len(s.Owner) == 32 {
		put("SubnetOwner", s.Owner)
	}
	if s.Symbol != "" {
		put("TokenSymbol", append([]byte{byte(len(s.Symbol)) << 2}, s.Symbol...))
	}
}

// SeedAccount 写入 System.Account，free 以外的字段为 0。
func SeedAccount(node *substratetest.Node, cold []byte, freeRao uint64) {
	value := make([]byte, 16, 80)
	value = append(value, u64(freeRao)...)
	value = append(value, make([]byte, 56)...)
	node.Put(substrate.StorageKey("System", "Account", substrate.Blake2_128Concat(cold)), value)
}

// SeedHotkeys 写入 StakingHotkeys 或 OwnedHotkeys。
func SeedHotkeys(node *substratetest.Node, item string, cold []byte, hotkeys ...[]byte) {
	value := []byte{byte(len(hotkeys)) << 2}
	for _, hot := range hotkeys {
		value = append(value, hot...)
	}
	node.Put(substrate.StorageKey(pallet, item, substrate.Blake2_128Concat(cold)), value)
}

// SeedAlpha 写入 Alpha(hot, cold, netuid)，数值为整数 rao。
func SeedAlpha(node *substratetest.Node, hot, cold []byte, netuid uint16, alphaRao uint64) {
	value := append(make([]byte, 8), u64(alphaRao)...)
	key := substrate.StorageKey(pallet, "Alpha",
		substrate.Blake2_128Concat(hot), substrate.Blake2_128Concat(cold), substrate.EncodeU16(netuid))
	node.Put(key, value)
}

// AccountID 返回首尾字节为 b、其余为 0 的 32 字节账户。
func AccountID(b byte) []byte {
	id := make([]byte, 32)
	id[0] = b
	id[31] = b
	return id
}

func u64(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}
