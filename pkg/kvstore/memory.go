package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory 进程内实现（测试与 dry-run 使用）
type Memory struct {
	mu    sync.RWMutex
	items map[string]*memItem
	now   func() time.Time
}

type memItem struct {
	value     []byte
	expiresAt time.Time // 零值表示不过期
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]*memItem), now: time.Now}
}

// SetClock 替换时钟（测试过期逻辑）
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) expired(it *memItem, now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[key]
	if !ok || m.expired(it, m.now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *Memory) SetWithExpiry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := &memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keys := make([]string, 0)
	for k, it := range m.items {
		// 惰性清理过期项
		if m.expired(it, now) {
			delete(m.items, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }
