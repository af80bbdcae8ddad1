package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口速率限制器：任意 windowSize 时间内最多 limit 次
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	now        func() time.Time

	mu       sync.Mutex
	requests []time.Time
}

// NewSlidingWindow 创建新的滑动窗口速率限制器；limit <= 0 表示不限制
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// evict 调用方持有锁
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求（允许时计入窗口）
func (sw *SlidingWindow) Allow() bool {
	if sw.limit <= 0 {
		return true
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	if sw.limit <= 0 {
		return -1
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(sw.now())
	return sw.limit - len(sw.requests)
}

// GetResetTime 最早一次请求滑出窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := sw.now()
	sw.evict(now)
	if len(sw.requests) == 0 {
		return now
	}
	return sw.requests[0].Add(sw.windowSize)
}

// Keyed 按 key 分别限流（例如按告警标题），每个 key 一个滑动窗口
type Keyed struct {
	limit      int
	windowSize time.Duration
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*SlidingWindow
}

func NewKeyed(limit int, windowSize time.Duration) *Keyed {
	return &Keyed{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
		limiters:   make(map[string]*SlidingWindow),
	}
}

// SetClock 注入时钟（测试用）
func (k *Keyed) SetClock(now func() time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.now = now
	for _, l := range k.limiters {
		l.mu.Lock()
		l.now = now
		l.mu.Unlock()
	}
}

// GetLimiter 获取 key 对应的限制器，不存在则创建
func (k *Keyed) GetLimiter(key string) *SlidingWindow {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = NewSlidingWindow(k.limit, k.windowSize)
		l.now = k.now
		k.limiters[key] = l
	}
	return l
}

// Allow 检查 key 是否允许请求
func (k *Keyed) Allow(key string) bool {
	return k.GetLimiter(key).Allow()
}
