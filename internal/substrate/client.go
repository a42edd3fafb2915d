package substrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultCallTimeout = 30 * time.Second
	readLimit          = 32 << 20
	keysPageSize       = 1000
	queryBatchSize     = 256
)

// RPCError 是节点返回的 JSON-RPC 错误对象。
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// KeyValue 是一条存储项，Value 为 nil 表示链上不存在。
type KeyValue struct {
	Key   []byte
	Value []byte
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client 通过 WebSocket 与 Substrate 节点通信。连接按需建立，
// 失败后下一次调用会轮换到下一个端点重连。调用被串行化。
type Client struct {
	endpoints []string
	logger    *logrus.Logger
	timeout   time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	active int
	nextID uint64
}

// NewClient 构造客户端；timeout 作用于单次调用（含建连），<=0 时使用 30s。
func NewClient(endpoints []string, logger *logrus.Logger, timeout time.Duration) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one rpc endpoint is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		endpoints: append([]string(nil), endpoints...),
		logger:    logger,
		timeout:   timeout,
	}, nil
}

// Endpoint 返回当前（或下一次将要）使用的端点。
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.active]
}

// Close 关闭底层连接，之后的调用会重新建连。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

// Call 执行一次 JSON-RPC 调用，把 result 字段解码到 out（out 可为 nil）。
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	c.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.failLocked(err)
		return fmt.Errorf("send %s: %w", method, err)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.failLocked(err)
			return fmt.Errorf("read %s response: %w", method, err)
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		// 订阅推送等没有 id 的消息直接跳过
		if resp.ID == nil || *resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	var errs []error
	for i := 0; i < len(c.endpoints); i++ {
		idx := (c.active + i) % len(c.endpoints)
		endpoint := c.endpoints[idx]
		conn, _, err := websocket.Dial(ctx, endpoint, nil)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"action":   "rpc_dial",
				"endpoint": endpoint,
			}).WithError(err).Warn("rpc endpoint unreachable")
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		conn.SetReadLimit(readLimit)
		c.conn = conn
		c.active = idx
		c.logger.WithFields(logrus.Fields{
			"action":   "rpc_dial",
			"endpoint": endpoint,
		}).Info("connected to rpc endpoint")
		return nil
	}
	return fmt.Errorf("connect to rpc: %w", errors.Join(errs...))
}

func (c *Client) failLocked(err error) {
	c.logger.WithFields(logrus.Fields{
		"action":   "rpc_call",
		"endpoint": c.endpoints[c.active],
	}).WithError(err).Warn("rpc connection lost")
	_ = c.dropLocked()
	c.active = (c.active + 1) % len(c.endpoints)
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}

// BlockNumber 返回最新区块高度。
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var header struct {
		Number string `json:"number"`
	}
	if err := c.Call(ctx, "chain_getHeader", nil, &header); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(header.Number, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", header.Number, err)
	}
	return n, nil
}

// GetStorage 读取单个存储项，不存在时 ok 为 false。
func (c *Client) GetStorage(ctx context.Context, key []byte) ([]byte, bool, error) {
	var raw *string
	if err := c.Call(ctx, "state_getStorage", []any{HexEncode(key)}, &raw); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	value, err := HexDecode(*raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Keys 分页列出 prefix 下的全部存储键。
func (c *Client) Keys(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	var start []byte
	for {
		params := []any{HexEncode(prefix), keysPageSize}
		if start != nil {
			params = append(params, HexEncode(start))
		}
		var page []string
		if err := c.Call(ctx, "state_getKeysPaged", params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page {
			key, err := HexDecode(raw)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		if len(page) < keysPageSize {
			return keys, nil
		}
		start = keys[len(keys)-1]
	}
}

// QueryStorage 批量读取存储值，结果与 keys 顺序一致。
func (c *Client) QueryStorage(ctx context.Context, keys [][]byte) ([]KeyValue, error) {
	out := make([]KeyValue, 0, len(keys))
	for begin := 0; begin < len(keys); begin += queryBatchSize {
		end := min(begin+queryBatchSize, len(keys))
		batch := make([]string, 0, end-begin)
		for _, key := range keys[begin:end] {
			batch = append(batch, HexEncode(key))
		}

		var changeSets []struct {
			Changes [][2]*string `json:"changes"`
		}
		if err := c.Call(ctx, "state_queryStorageAt", []any{batch}, &changeSets); err != nil {
			return nil, err
		}

		values := make(map[string][]byte, len(batch))
		for _, set := range changeSets {
			for _, change := range set.Changes {
				if change[0] == nil || change[1] == nil {
					continue
				}
				value, err := HexDecode(*change[1])
				if err != nil {
					return nil, err
				}
				values[strings.ToLower(*change[0])] = value
			}
		}
		for i, key := range keys[begin:end] {
			out = append(out, KeyValue{Key: key, Value: values[strings.ToLower(batch[i])]})
		}
	}
	return out, nil
}

// QueryMap 读取一个存储 map 的全部条目。
func (c *Client) QueryMap(ctx context.Context, prefix []byte) ([]KeyValue, error) {
	keys, err := c.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return c.QueryStorage(ctx, keys)
}
