package substrate

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Twox128 是 Substrate 存储前缀使用的哈希：xxhash64(seed 0) ‖ xxhash64(seed 1)，均为小端。
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

// Blake2_128Concat 返回 blake2b-128(data) ‖ data。
func Blake2_128Concat(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	_, _ = h.Write(data)
	return append(h.Sum(nil), data...)
}

// Identity 是不做哈希的 map hasher。
func Identity(data []byte) []byte {
	return append([]byte(nil), data...)
}

// StoragePrefix 返回 twox128(pallet) ‖ twox128(item)。
func StoragePrefix(pallet, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// StorageKey 拼接存储前缀与已经过 hasher 处理的键片段。
func StorageKey(pallet, item string, hashedKeys ...[]byte) []byte {
	key := StoragePrefix(pallet, item)
	for _, part := range hashedKeys {
		key = append(key, part...)
	}
	return key
}

// EncodeU16 按 SCALE 小端编码 u16，常用于 netuid。
func EncodeU16(v uint16) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, v)
	return out
}

// HexEncode 输出带 0x 前缀的十六进制串。
func HexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexDecode 解析带或不带 0x 前缀的十六进制串。
func HexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}
