package substrate_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tao-tracker/tao-tracker/internal/logging"
	"github.com/tao-tracker/tao-tracker/internal/substrate"
	"github.com/tao-tracker/tao-tracker/internal/substrate/substratetest"
)

func newClient(t *testing.T, endpoints ...string) *substrate.Client {
	t.Helper()
	client, err := substrate.NewClient(endpoints, logging.Discard(), 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientBlockNumber(t *testing.T) {
	node := substratetest.NewNode()
	defer node.Close()
	node.SetBlock(4_200_001)

	client := newClient(t, node.URL())
	n, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber error: %v", err)
	}
	if n != 4_200_001 {
		t.Fatalf("BlockNumber = %d", n)
	}
}

func TestClientGetStorage(t *testing.T) {
	node := substratetest.NewNode()
	defer node.Close()
	key := substrate.StorageKey("SubtensorModule", "Tempo", substrate.EncodeU16(1))
	node.Put(key, []byte{0x68, 0x01})

	client := newClient(t, node.URL())
	value, ok, err := client.GetStorage(context.Background(), key)
	if err != nil || !ok || !bytes.Equal(value, []byte{0x68, 0x01}) {
		t.Fatalf("GetStorage = %x, %v, %v", value, ok, err)
	}

	missing := substrate.StorageKey("SubtensorModule", "Tempo", substrate.EncodeU16(2))
	if _, ok, err := client.GetStorage(context.Background(), missing); err != nil || ok {
		t.Fatalf("expected absent value, got ok=%v err=%v", ok, err)
	}
}

func TestClientQueryMapPagesThroughKeys(t *testing.T) {
	node := substratetest.NewNode()
	defer node.Close()
	prefix := substrate.StoragePrefix("SubtensorModule", "SubnetworkN")
	for i := 0; i < 1500; i++ {
		node.Put(substrate.StorageKey("SubtensorModule", "SubnetworkN", substrate.EncodeU16(uint16(i))), substrate.EncodeU16(uint16(i)))
	}
	node.Put(substrate.StorageKey("SubtensorModule", "Tempo", substrate.EncodeU16(0)), []byte{1, 0})

	client := newClient(t, node.URL())
	entries, err := client.QueryMap(context.Background(), prefix)
	if err != nil {
		t.Fatalf("QueryMap error: %v", err)
	}
	if len(entries) != 1500 {
		t.Fatalf("expected 1500 entries, got %d", len(entries))
	}
	for _, kv := range entries {
		if !bytes.Equal(kv.Key[len(prefix):], kv.Value) {
			t.Fatalf("value does not match key: %x -> %x", kv.Key, kv.Value)
		}
	}
	if node.Calls("state_getKeysPaged") != 2 {
		t.Fatalf("expected 2 pages, got %d", node.Calls("state_getKeysPaged"))
	}
}

func TestClientSurfacesRPCError(t *testing.T) {
	node := substratetest.NewNode()
	defer node.Close()
	node.Fail(true)

	client := newClient(t, node.URL())
	_, err := client.BlockNumber(context.Background())
	var rpcErr *substrate.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32000 {
		t.Fatalf("unexpected code %d", rpcErr.Code)
	}
}

func TestClientFailsOverToNextEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	node := substratetest.NewNode()
	defer node.Close()
	node.SetBlock(7)

	client := newClient(t, deadURL, node.URL())
	n, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber error: %v", err)
	}
	if n != 7 || client.Endpoint() != node.URL() {
		t.Fatalf("expected fail-over to %s, got block %d via %s", node.URL(), n, client.Endpoint())
	}
}

func TestClientReconnectsAfterNodeRestart(t *testing.T) {
	node := substratetest.NewNode()
	node.SetBlock(1)
	client := newClient(t, node.URL())
	if _, err := client.BlockNumber(context.Background()); err != nil {
		t.Fatalf("BlockNumber error: %v", err)
	}
	node.Close()

	if _, err := client.BlockNumber(context.Background()); err == nil {
		t.Fatalf("expected error after node shutdown")
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := substrate.NewClient(nil, logging.Discard(), time.Second); err == nil {
		t.Fatalf("expected error for empty endpoints")
	}
	if _, err := substrate.NewClient([]string{"ws://x"}, nil, time.Second); err == nil {
		t.Fatalf("expected error for nil logger")
	}
}
