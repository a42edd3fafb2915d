// Package substratetest provides an in-process Substrate node stub that
// speaks the handful of JSON-RPC methods the substrate client uses.
package substratetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/tao-tracker/tao-tracker/internal/substrate"
)

// Node 是内存中的假节点。
type Node struct {
	server *httptest.Server
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	storage map[string][]byte
	block   uint64
	failing bool
	calls   map[string]int
}

// NewNode 启动假节点，测试结束时调用 Close。
func NewNode() *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		ctx:     ctx,
		cancel:  cancel,
		storage: make(map[string][]byte),
		calls:   make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

// URL 返回 ws:// 地址。
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// Close 断开所有 WebSocket 连接并关闭服务器。
func (n *Node) Close() {
	n.cancel()
	n.server.Close()
}

// Put 写入一条存储项。
func (n *Node) Put(key, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.storage[substrate.HexEncode(key)] = append([]byte(nil), value...)
}

// SetBlock 设置 chain_getHeader 返回的区块高度。
func (n *Node) SetBlock(number uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.block = number
}

// Fail 打开后所有调用返回 JSON-RPC 错误。
func (n *Node) Fail(failing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing = failing
}

// Calls 返回某个方法被调用的次数。
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

type request struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  any       `json:"result"`
	Error   *rpcError `json:"error,omitempty"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(32 << 20)

	ctx := n.ctx
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		resp := n.handle(req)
		payload, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

func (n *Node) handle(req request) response {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls[req.Method]++
	resp := response{JSONRPC: "2.0", ID: req.ID}
	if n.failing {
		resp.Error = &rpcError{Code: -32000, Message: "node unavailable"}
		return resp
	}

	switch req.Method {
	case "chain_getHeader":
		resp.Result = map[string]string{"number": fmt.Sprintf("0x%x", n.block)}
	case "state_getStorage":
		var key string
		if err := param(req, 0, &key); err != nil {
			resp.Error = err
			return resp
		}
		if value, ok := n.storage[strings.ToLower(key)]; ok {
			resp.Result = substrate.HexEncode(value)
		}
	case "state_getKeysPaged":
		var prefix, start string
		var count int
		if err := param(req, 0, &prefix); err != nil {
			resp.Error = err
			return resp
		}
		if err := param(req, 1, &count); err != nil {
			resp.Error = err
			return resp
		}
		if len(req.Params) > 2 {
			_ = param(req, 2, &start)
		}
		resp.Result = n.keysPaged(strings.ToLower(prefix), strings.ToLower(start), count)
	case "state_queryStorageAt":
		var keys []string
		if err := param(req, 0, &keys); err != nil {
			resp.Error = err
			return resp
		}
		changes := make([][2]*string, 0, len(keys))
		for _, key := range keys {
			k := key
			var v *string
			if value, ok := n.storage[strings.ToLower(key)]; ok {
				encoded := substrate.HexEncode(value)
				v = &encoded
			}
			changes = append(changes, [2]*string{&k, v})
		}
		resp.Result = []map[string]any{{"block": "0x00", "changes": changes}}
	default:
		resp.Error = &rpcError{Code: -32601, Message: "Method not found"}
	}
	return resp
}

func (n *Node) keysPaged(prefix, start string, count int) []string {
	keys := make([]string, 0)
	for key := range n.storage {
		if strings.HasPrefix(key, prefix) && key > start {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > count {
		keys = keys[:count]
	}
	return keys
}

func param(req request, idx int, out any) *rpcError {
	if idx >= len(req.Params) {
		return &rpcError{Code: -32602, Message: "missing param"}
	}
	if err := json.Unmarshal(req.Params[idx], out); err != nil {
		return &rpcError{Code: -32602, Message: err.Error()}
	}
	return nil
}
