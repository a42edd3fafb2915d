package cache

import (
	"sort"
	"sync"
	"time"
)

// Slot 是一个命名缓存槽位：最近一次成功抓取的载荷及其抓取时间。
type Slot struct {
	Name      string
	Value     any
	FetchedAt time.Time
}

// Store 管理命名槽位。Set 必须原子地同时替换 Value 与 FetchedAt，
// 读者不会观察到新旧字段混搭的槽位。
type Store interface {
	// Get 返回槽位当前状态，不做任何修改。
	Get(name string) (Slot, bool)
	// Set 覆盖槽位的载荷与抓取时间。
	Set(name string, value any, fetchedAt time.Time)
	// Names 返回当前持有的槽位名称（按字典序），供诊断接口使用。
	Names() []string
}

// NewMemoryStore 构建单锁保护的内存 Store，槽位数量很少，一把 RWMutex 足够。
func NewMemoryStore() Store {
	return &memoryStore{slots: make(map[string]Slot)}
}

type memoryStore struct {
	mu    sync.RWMutex
	slots map[string]Slot
}

func (s *memoryStore) Get(name string) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[name]
	return slot, ok
}

func (s *memoryStore) Set(name string, value any, fetchedAt time.Time) {
	s.mu.Lock()
	s.slots[name] = Slot{Name: name, Value: value, FetchedAt: fetchedAt}
	s.mu.Unlock()
}

func (s *memoryStore) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}
