package execution

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// ErrDuplicateInFlight 同一 symbol 的执行仍在进行中
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightGuard 按 A 所 symbol 串行化执行：同一 symbol 同时只允许一笔执行。
//
// 正常路径由 Release 释放；ttl 只是兜底（进程内 panic 未释放等），
// 应明显长于一次完整执行（下单 + 等待成交 + 补偿）。
type InFlightGuard struct {
	ttl    time.Duration
	now    func() time.Time
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // symbol -> expiresAt
}

func NewInFlightGuard(ttl time.Duration, shardCount int) *InFlightGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlightGuard{ttl: ttl, now: time.Now, shards: shards}
}

// TryAcquire 成功返回 nil，已被占用返回 ErrDuplicateInFlight
func (g *InFlightGuard) TryAcquire(symbol string) error {
	if g == nil || symbol == "" {
		return nil
	}
	now := g.now()
	sh := g.shard(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if exp, ok := sh.m[symbol]; ok && exp.After(now) {
		return ErrDuplicateInFlight
	}
	sh.m[symbol] = now.Add(g.ttl)
	return nil
}

func (g *InFlightGuard) Release(symbol string) {
	if g == nil || symbol == "" {
		return
	}
	sh := g.shard(symbol)
	sh.mu.Lock()
	delete(sh.m, symbol)
	sh.mu.Unlock()
}

// Active 当前占用数（含未过期项）
func (g *InFlightGuard) Active() int {
	if g == nil {
		return 0
	}
	now := g.now()
	n := 0
	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.Lock()
		for k, exp := range sh.m {
			if exp.After(now) {
				n++
			} else {
				delete(sh.m, k)
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (g *InFlightGuard) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.shards[h.Sum32()%uint32(len(g.shards))]
}
