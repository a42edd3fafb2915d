package bittensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

// subnetFields 收集一个子网在各个存储 map 中的原始值。
type subnetFields struct {
	emission uint64
	price    float64
	taoIn    uint64
	alphaIn  uint64
	tempo    uint16
	neurons  uint16
	burn     uint64
	owner    []byte
	symbol   []byte
}

// subnetMaps 是按 netuid 索引的各个存储 map。
type subnetMaps struct {
	price   map[uint16]float64
	taoIn   map[uint16]uint64
	alphaIn map[uint16]uint64
	tempo   map[uint16]uint16
	neurons map[uint16]uint16
	burn    map[uint16]uint64
	owner   map[uint16][]byte
	symbol  map[uint16][]byte
}

// FetchSubnets 读取全部活跃子网。names 为社区维护的名称表，可以为空。
func (f *Fetcher) FetchSubnets(ctx context.Context, names map[uint16]string) ([]SubnetInfo, error) {
	active, err := f.activeNetuids(ctx)
	if err != nil {
		return nil, err
	}
	emissions, err := queryMap(ctx, f.chain, "SubnetTaoInEmission", (*substrate.Decoder).U64)
	if err != nil {
		return nil, err
	}

	var maps subnetMaps
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		maps.price, err = queryMap(gctx, f.chain, "SubnetMovingPrice", (*substrate.Decoder).I96F32)
		return err
	})
	g.Go(func() (err error) {
		maps.taoIn, err = queryMap(gctx, f.chain, "SubnetTAO", (*substrate.Decoder).U64)
		return err
	})
	g.Go(func() (err error) {
		maps.alphaIn, err = queryMap(gctx, f.chain, "SubnetAlphaIn", (*substrate.Decoder).U64)
		return err
	})
	g.Go(func() (err error) {
		maps.tempo, err = queryMap(gctx, f.chain, "Tempo", (*substrate.Decoder).U16)
		return err
	})
	g.Go(func() (err error) {
		maps.neurons, err = queryMap(gctx, f.chain, "SubnetworkN", (*substrate.Decoder).U16)
		return err
	})
	g.Go(func() (err error) {
		maps.burn, err = queryMap(gctx, f.chain, "Burn", (*substrate.Decoder).U64)
		return err
	})
	g.Go(func() (err error) {
		maps.owner, err = queryMap(gctx, f.chain, "SubnetOwner", (*substrate.Decoder).AccountID)
		return err
	})
	g.Go(func() (err error) {
		maps.symbol, err = queryMap(gctx, f.chain, "TokenSymbol", (*substrate.Decoder).Bytes)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total uint64
	for _, netuid := range active {
		total += emissions[netuid]
	}

	now := f.now()
	subnets := make([]SubnetInfo, 0, len(active))
	for _, netuid := range active {
		fields := subnetFields{
			emission: emissions[netuid],
			price:    maps.price[netuid],
			taoIn:    maps.taoIn[netuid],
			alphaIn:  maps.alphaIn[netuid],
			tempo:    maps.tempo[netuid],
			neurons:  maps.neurons[netuid],
			burn:     maps.burn[netuid],
			owner:    maps.owner[netuid],
			symbol:   maps.symbol[netuid],
		}
		info := buildSubnet(netuid, fields, total, names)
		info.Timestamp = now
		subnets = append(subnets, info)
	}

	f.logger.WithFields(logrus.Fields{
		"action":  "fetch_subnets",
		"subnets": len(subnets),
	}).Info("fetched subnets from chain")
	return subnets, nil
}

// FetchSubnet 读取单个子网；emission 占比以全部活跃子网为分母。
func (f *Fetcher) FetchSubnet(ctx context.Context, netuid uint16, names map[uint16]string) (SubnetInfo, error) {
	active, err := f.activeNetuids(ctx)
	if err != nil {
		return SubnetInfo{}, err
	}
	idx := sort.Search(len(active), func(i int) bool { return active[i] >= netuid })
	if idx == len(active) || active[idx] != netuid {
		return SubnetInfo{}, fmt.Errorf("%w: netuid %d", ErrSubnetNotFound, netuid)
	}

	emissions, err := queryMap(ctx, f.chain, "SubnetTaoInEmission", (*substrate.Decoder).U64)
	if err != nil {
		return SubnetInfo{}, err
	}
	var total uint64
	for _, n := range active {
		total += emissions[n]
	}

	items := []string{"SubnetMovingPrice", "SubnetTAO", "SubnetAlphaIn", "Tempo", "SubnetworkN", "Burn", "SubnetOwner", "TokenSymbol"}
	keys := make([][]byte, 0, len(items))
	for _, item := range items {
		keys = append(keys, netuidKey(item, netuid))
	}
	values, err := f.chain.QueryStorage(ctx, keys)
	if err != nil {
		return SubnetInfo{}, err
	}

	fields := subnetFields{emission: emissions[netuid]}
	decoders := []func(*substrate.Decoder) error{
		func(d *substrate.Decoder) (err error) { fields.price, err = d.I96F32(); return },
		func(d *substrate.Decoder) (err error) { fields.taoIn, err = d.U64(); return },
		func(d *substrate.Decoder) (err error) { fields.alphaIn, err = d.U64(); return },
		func(d *substrate.Decoder) (err error) { fields.tempo, err = d.U16(); return },
		func(d *substrate.Decoder) (err error) { fields.neurons, err = d.U16(); return },
		func(d *substrate.Decoder) (err error) { fields.burn, err = d.U64(); return },
		func(d *substrate.Decoder) (err error) { fields.owner, err = d.AccountID(); return },
		func(d *substrate.Decoder) (err error) { fields.symbol, err = d.Bytes(); return },
	}
	for i, kv := range values {
		if kv.Value == nil {
			continue
		}
		if err := decoders[i](substrate.NewDecoder(kv.Value)); err != nil {
			return SubnetInfo{}, fmt.Errorf("decode %s for netuid %d: %w", items[i], netuid, err)
		}
	}

	info := buildSubnet(netuid, fields, total, names)
	info.Timestamp = f.now()
	return info, nil
}

// activeNetuids 返回 NetworksAdded 中为 true 的 netuid，升序。
func (f *Fetcher) activeNetuids(ctx context.Context) ([]uint16, error) {
	added, err := queryMap(ctx, f.chain, "NetworksAdded", (*substrate.Decoder).Bool)
	if err != nil {
		return nil, err
	}
	active := make([]uint16, 0, len(added))
	for netuid, ok := range added {
		if ok {
			active = append(active, netuid)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	return active, nil
}

func buildSubnet(netuid uint16, fields subnetFields, totalEmission uint64, names map[uint16]string) SubnetInfo {
	var share float64
	if totalEmission > 0 {
		share = float64(fields.emission) / float64(totalEmission) * 100
	}

	name := names[netuid]
	if name == "" {
		name = fmt.Sprintf("Subnet %d", netuid)
	}
	symbol := strings.Trim(string(fields.symbol), "\x00")
	if symbol == "" {
		symbol = fmt.Sprintf("SN%d", netuid)
	}
	owner := "Unknown"
	if len(fields.owner) == 32 {
		if addr, err := substrate.EncodeSS58(fields.owner, substrate.BittensorPrefix); err == nil {
			owner = addr
		}
	}

	taoIn := raoToTao(float64(fields.taoIn))
	return SubnetInfo{
		Netuid:             netuid,
		Name:               name,
		Symbol:             symbol,
		Owner:              owner,
		Emission:           round(raoToTao(float64(fields.emission)), 6),
		EmissionPercentage: round(share, 4),
		Tempo:              fields.tempo,
		Neurons:            fields.neurons,
		RegistrationCost:   round(raoToTao(float64(fields.burn)), 4),
		AlphaPrice:         round(fields.price, 8),
		TaoInReserve:       round(taoIn, 4),
		AlphaInReserve:     round(raoToTao(float64(fields.alphaIn)), 4),
		SubnetTao:          round(taoIn, 4),
	}
}

func netuidKey(item string, netuid uint16) []byte {
	return substrate.StorageKey(subtensorPallet, item, substrate.Identity(substrate.EncodeU16(netuid)))
}

// queryMap 读取以 netuid（Identity hasher）为键的存储 map 并逐项解码。
func queryMap[T any](ctx context.Context, chain Chain, item string, decode func(*substrate.Decoder) (T, error)) (map[uint16]T, error) {
	entries, err := chain.QueryMap(ctx, substrate.StoragePrefix(subtensorPallet, item))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", item, err)
	}
	out := make(map[uint16]T, len(entries))
	for _, kv := range entries {
		if kv.Value == nil || len(kv.Key) < 34 {
			continue
		}
		netuid := binary.LittleEndian.Uint16(kv.Key[len(kv.Key)-2:])
		value, err := decode(substrate.NewDecoder(kv.Value))
		if err != nil {
			return nil, fmt.Errorf("decode %s for netuid %d: %w", item, netuid, err)
		}
		out[netuid] = value
	}
	return out, nil
}
