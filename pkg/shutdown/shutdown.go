package shutdown

import (
	"context"
	"fmt"
	"sync"

	"github.com/betbot/spreadarb/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type hook struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序执行：
// 后启动的组件（编排器、状态服务）先停，最底层的存储最后关闭。
type Manager struct {
	mu    sync.Mutex
	hooks []hook
	done  bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用，只执行一次）。
// ctx 应该是一个带超时的 context；超时后剩余回调不再执行。
func (m *Manager) Shutdown(ctx context.Context) []error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	hooks := m.hooks
	m.mu.Unlock()

	if len(hooks) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(hooks))

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过剩余 %d 个回调: %v", i+1, err)
			errs = append(errs, err)
			break
		}
		h := hooks[i]
		if err := runHook(ctx, h); err != nil {
			logger.Warnf("关闭 %s 失败: %v", h.name, err)
			errs = append(errs, err)
			continue
		}
		logger.Debugf("已关闭 %s", h.name)
	}

	if len(errs) == 0 {
		logger.Info("所有关闭回调已完成")
	}
	return errs
}

func runHook(ctx context.Context, h hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown hook %s panic: %v", h.name, r)
		}
	}()
	return h.fn(ctx)
}
