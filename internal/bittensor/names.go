package bittensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const maxNamesBody = 4 << 20

// NameSource 拉取社区维护的子网名称表（taostat subnets.json）。
type NameSource struct {
	url    string
	client *http.Client
}

// NewNameSource 构造名称源，client 由调用方提供以共享连接池与超时。
func NewNameSource(url string, client *http.Client) (*NameSource, error) {
	if url == "" {
		return nil, errors.New("subnet names url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &NameSource{url: url, client: client}, nil
}

// Fetch 返回 netuid -> 名称。条目值可以是字符串，也可以是带 name 字段的对象。
func (s *NameSource) Fetch(ctx context.Context) (map[uint16]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build names request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch subnet names: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch subnet names: unexpected status %d", resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxNamesBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode subnet names: %w", err)
	}

	names := make(map[uint16]string, len(raw))
	for key, value := range raw {
		netuid, err := strconv.ParseUint(strings.TrimSpace(key), 10, 16)
		if err != nil {
			continue
		}
		if name := decodeName(value); name != "" {
			names[uint16(netuid)] = name
		}
	}
	return names, nil
}

func decodeName(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.TrimSpace(name)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}
