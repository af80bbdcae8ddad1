package kvstore

import (
	"context"
	"fmt"
	"time"
)

// Store 最小 KV 存储约定：读、带过期写、按前缀扫描键。
// 仓位存储（SSOT）只依赖这三个操作，具体后端可以是内存、Redis 或 Badger。
type Store interface {
	// Get returns ErrNotFound when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ErrNotFound 表示数据不存在
var ErrNotFound = fmt.Errorf("kvstore: key not found")

// Backend 名称
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Options 打开存储后端所需参数
type Options struct {
	Backend string

	// redis
	RedisAddr     string
	RedisDB       int
	RedisUsername string
	RedisPassword string

	// badger
	BadgerPath     string
	BadgerInMemory bool
}

// Open 根据 Backend 打开对应实现
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(RedisOptions{
			Addr:     opts.RedisAddr,
			DB:       opts.RedisDB,
			Username: opts.RedisUsername,
			Password: opts.RedisPassword,
		})
	case BackendBadger:
		return OpenBadger(BadgerOptions{Path: opts.BadgerPath, InMemory: opts.BadgerInMemory})
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", opts.Backend)
	}
}
