package positions

import (
	"hash/fnv"
	"sync"
)

// keyLocks 分片互斥锁：同一 symbol 的状态迁移串行化，不同 symbol 大概率互不阻塞。
// 不为每个 key 单独建锁，避免 map 无限增长。
type keyLocks struct {
	shards []sync.Mutex
}

func newKeyLocks(shardCount int) *keyLocks {
	if shardCount <= 0 {
		shardCount = 64
	}
	return &keyLocks{shards: make([]sync.Mutex, shardCount)}
}

func (l *keyLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.shards[int(h.Sum32()%uint32(len(l.shards)))]
	m.Lock()
	return m.Unlock
}
