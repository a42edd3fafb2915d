package substrate

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

// BittensorPrefix 是 Bittensor 网络使用的 SS58 地址前缀。
const BittensorPrefix = 42

// ErrInvalidAddress 表示 SS58 地址格式或校验和错误。
var ErrInvalidAddress = errors.New("invalid ss58 address")

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var ss58Context = []byte("SS58PRE")

// EncodeSS58 把 32 字节公钥编码为 SS58 地址，仅支持单字节前缀（0-63）。
func EncodeSS58(pubkey []byte, prefix uint8) (string, error) {
	if len(pubkey) != 32 {
		return "", fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrInvalidAddress, len(pubkey))
	}
	if prefix > 63 {
		return "", fmt.Errorf("%w: prefix %d needs the two-byte form", ErrInvalidAddress, prefix)
	}
	payload := append([]byte{prefix}, pubkey...)
	return base58Encode(append(payload, ss58Checksum(payload)...)), nil
}

// DecodeSS58 校验地址并返回公钥与网络前缀。
func DecodeSS58(address string) ([]byte, uint8, error) {
	raw, err := base58Decode(address)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) != 35 {
		return nil, 0, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	if raw[0] > 63 {
		return nil, 0, fmt.Errorf("%w: unsupported prefix byte %#x", ErrInvalidAddress, raw[0])
	}
	payload, sum := raw[:33], raw[33:]
	if !bytes.Equal(ss58Checksum(payload), sum) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return append([]byte(nil), payload[1:]...), payload[0], nil
}

func ss58Checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	_, _ = h.Write(ss58Context)
	_, _ = h.Write(payload)
	return h.Sum(nil)[:2]
}

func base58Encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	n := new(big.Int)
	radix := big.NewInt(58)
	for _, r := range s {
		idx := bytes.IndexRune([]byte(base58Alphabet), r)
		if idx < 0 {
			return nil, fmt.Errorf("%w: character %q is not base58", ErrInvalidAddress, r)
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(idx)))
	}
	decoded := n.Bytes()
	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}
	return append(make([]byte, zeros), decoded...), nil
}
