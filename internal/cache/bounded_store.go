package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// NewBoundedStore 以 ristretto 为底座构建容量受限的 Store，用于按钱包地址等
// 无界键空间划分的槽位。超过 maxEntries 后按 TinyLFU 淘汰，被淘汰的槽位
// 也就失去了 stale 兜底能力。
func NewBoundedStore(maxEntries int64) (*BoundedStore, error) {
	if maxEntries <= 0 {
		return nil, errors.New("bounded store requires a positive capacity")
	}

	s := &BoundedStore{}
	c, err := ristretto.NewCache(&ristretto.Config[string, Slot]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            s.forget,
		OnReject:           s.forget,
	})
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

// BoundedStore 实现 Store；names 只用于诊断列表，随淘汰回调同步删除。
type BoundedStore struct {
	c     *ristretto.Cache[string, Slot]
	names sync.Map
}

func (s *BoundedStore) Get(name string) (Slot, bool) {
	return s.c.Get(name)
}

// Set 写入后等待 ristretto 缓冲区落地，保证随后的 Get 可见。
func (s *BoundedStore) Set(name string, value any, fetchedAt time.Time) {
	slot := Slot{Name: name, Value: value, FetchedAt: fetchedAt}
	s.names.Store(name, struct{}{})
	s.c.Set(name, slot, 1)
	s.c.Wait()
}

func (s *BoundedStore) Names() []string {
	var names []string
	s.names.Range(func(key, _ any) bool {
		name := key.(string)
		if _, ok := s.c.Get(name); ok {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

// Close 释放 ristretto 的后台 goroutine。
func (s *BoundedStore) Close() {
	s.c.Close()
}

func (s *BoundedStore) forget(item *ristretto.Item[Slot]) {
	if item == nil || item.Value.Name == "" {
		return
	}
	s.names.Delete(item.Value.Name)
}
