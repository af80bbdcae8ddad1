package risk

import (
	"sync"
	"time"
)

// Cooldown 冷却记录（可序列化，用于跨重启恢复）
type Cooldown struct {
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// CooldownBook 按 symbol（A 所）记录冷却截止时间；过期项在读取时清理。
type CooldownBook struct {
	mu    sync.Mutex
	items map[string]Cooldown
}

func NewCooldownBook() *CooldownBook {
	return &CooldownBook{items: make(map[string]Cooldown)}
}

// Set 设置冷却；已有更晚的截止时间时保留更晚者
func (b *CooldownBook) Set(symbol string, until time.Time, reason string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.items[symbol]; ok && cur.Until.After(until) {
		return cur.Until
	}
	b.items[symbol] = Cooldown{Until: until, Reason: reason}
	return until
}

// Active 返回冷却截止时间与原因
func (b *CooldownBook) Active(symbol string, now time.Time) (time.Time, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.items[symbol]
	if !ok {
		return time.Time{}, "", false
	}
	if !now.Before(e.Until) {
		delete(b.items, symbol)
		return time.Time{}, "", false
	}
	return e.Until, e.Reason, true
}

func (b *CooldownBook) Clear(symbol string) {
	b.mu.Lock()
	delete(b.items, symbol)
	b.mu.Unlock()
}

// Snapshot 当前仍有效的冷却
func (b *CooldownBook) Snapshot(now time.Time) map[string]Cooldown {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Cooldown, len(b.items))
	for k, e := range b.items {
		if now.Before(e.Until) {
			out[k] = e
		} else {
			delete(b.items, k)
		}
	}
	return out
}
