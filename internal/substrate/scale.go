package substrate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrShortInput 表示 SCALE 数据不足以解码目标类型。
var ErrShortInput = errors.New("scale: short input")

// Decoder 顺序解码 SCALE 编码的字节。
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder 包装一段 SCALE 数据。
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining 返回尚未读取的字节数。
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortInput, n, d.Remaining())
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// Skip 跳过 n 个字节。
func (d *Decoder) Skip(n int) error {
	_, err := d.take(n)
	return err
}

func (d *Decoder) Bool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	return b[0] == 1, nil
}

func (d *Decoder) U16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) U64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// U128 解码 u128 为 big.Int。
func (d *Decoder) U128() (*big.Int, error) {
	b, err := d.take(16)
	if err != nil {
		return nil, err
	}
	return leUnsigned(b), nil
}

// Compact 解码 SCALE compact 整数（最多 8 字节的 big-integer 模式）。
func (d *Decoder) Compact() (uint64, error) {
	first, err := d.take(1)
	if err != nil {
		return 0, err
	}
	switch first[0] & 0b11 {
	case 0b00:
		return uint64(first[0] >> 2), nil
	case 0b01:
		next, err := d.take(1)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16([]byte{first[0], next[0]}) >> 2), nil
	case 0b10:
		rest, err := d.take(3)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32([]byte{first[0], rest[0], rest[1], rest[2]}) >> 2), nil
	default:
		n := int(first[0]>>2) + 4
		if n > 8 {
			return 0, fmt.Errorf("scale: compact integer of %d bytes overflows uint64", n)
		}
		raw, err := d.take(n)
		if err != nil {
			return 0, err
		}
		padded := make([]byte, 8)
		copy(padded, raw)
		return binary.LittleEndian.Uint64(padded), nil
	}
}

// Bytes 解码 Vec<u8>。
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Compact()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, fmt.Errorf("%w: vec of %d bytes, have %d", ErrShortInput, n, d.Remaining())
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// AccountID 解码 32 字节的 AccountId32。
func (d *Decoder) AccountID() ([]byte, error) {
	b, err := d.take(32)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// AccountIDs 解码 Vec<AccountId32>。
func (d *Decoder) AccountIDs() ([][]byte, error) {
	n, err := d.Compact()
	if err != nil {
		return nil, err
	}
	// 长度来自链上数据，先按剩余字节校验再分配。
	if n > uint64(d.Remaining()/32) {
		return nil, fmt.Errorf("%w: %d account ids, have %d bytes", ErrShortInput, n, d.Remaining())
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := d.AccountID()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// I96F32 解码有符号 128 位定点数（32 位小数），用于子网 alpha 价格。
func (d *Decoder) I96F32() (float64, error) {
	b, err := d.take(16)
	if err != nil {
		return 0, err
	}
	v := leUnsigned(b)
	if b[15]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return fixedToFloat(v, 32), nil
}

// U64F64 解码无符号 128 位定点数（64 位小数），用于 alpha 持仓。
func (d *Decoder) U64F64() (float64, error) {
	b, err := d.take(16)
	if err != nil {
		return 0, err
	}
	return fixedToFloat(leUnsigned(b), 64), nil
}

func leUnsigned(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

func fixedToFloat(v *big.Int, fractionalBits uint) float64 {
	num := new(big.Float).SetInt(v)
	den := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), fractionalBits))
	out, _ := new(big.Float).Quo(num, den).Float64()
	return out
}
