package substrate_test

import (
	"bytes"
	"testing"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

func TestStoragePrefixMatchesKnownVector(t *testing.T) {
	got := substrate.HexEncode(substrate.StoragePrefix("System", "Account"))
	want := "0x26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9"
	if got != want {
		t.Fatalf("System.Account prefix = %s, want %s", got, want)
	}
}

func TestBlake2_128ConcatKeepsInput(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	hashed := substrate.Blake2_128Concat(data)
	if len(hashed) != 16+len(data) {
		t.Fatalf("unexpected length %d", len(hashed))
	}
	if !bytes.Equal(hashed[16:], data) {
		t.Fatalf("input not appended: %x", hashed)
	}
	if bytes.Equal(substrate.Blake2_128Concat([]byte{1, 2, 3, 5})[:16], hashed[:16]) {
		t.Fatalf("different inputs should hash differently")
	}
}

func TestStorageKeyAppendsParts(t *testing.T) {
	key := substrate.StorageKey("SubtensorModule", "Tempo", substrate.Identity(substrate.EncodeU16(3)))
	prefix := substrate.StoragePrefix("SubtensorModule", "Tempo")
	if !bytes.HasPrefix(key, prefix) || !bytes.Equal(key[len(prefix):], []byte{3, 0}) {
		t.Fatalf("unexpected key %x", key)
	}
}

func TestHexDecode(t *testing.T) {
	b, err := substrate.HexDecode("0xdeadBEEF")
	if err != nil || !bytes.Equal(b, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("HexDecode = %x, %v", b, err)
	}
	if _, err := substrate.HexDecode("0xzz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
