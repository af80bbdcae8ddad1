package syncgroup

import (
	"context"
	"sync"

	"github.com/betbot/spreadarb/pkg/logger"
)

// Task 后台任务；ctx 取消后应尽快返回
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	fn   Task
}

// SyncGroup 管理一组长生命周期的后台 goroutine（编排循环、状态服务等）：
// 统一启动、统一等待，任务 panic 不会带崩进程。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	tasks   []namedTask
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加任务；Run 之后添加的任务在下一次 Run 时启动
func (w *SyncGroup) Add(name string, fn Task) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = append(w.tasks, namedTask{name: name, fn: fn})
}

// Run 启动所有已添加、尚未启动的任务
func (w *SyncGroup) Run(ctx context.Context) {
	w.mu.Lock()
	tasks := w.tasks
	w.tasks = nil
	w.running += len(tasks)
	w.mu.Unlock()

	for _, t := range tasks {
		w.wg.Add(1)
		go func(t namedTask) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[syncgroup] %s panic: %v", t.name, r)
				}
				w.mu.Lock()
				w.running--
				w.mu.Unlock()
				w.wg.Done()
			}()
			if err := t.fn(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("[syncgroup] %s 退出: %v", t.name, err)
			}
		}(t)
	}
}

// Running 当前仍在运行的任务数
func (w *SyncGroup) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Wait 等待所有已启动的任务完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
