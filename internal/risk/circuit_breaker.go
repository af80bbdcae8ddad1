package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// 断路器打开原因
const (
	BreakerHalted      = "halted"
	BreakerErrorStreak = "error_streak"
	BreakerDailyLoss   = "daily_loss"
)

// BreakerError 带原因的断路器错误，errors.Is(err, ErrCircuitBreakerOpen) 成立。
type BreakerError struct {
	Reason string
}

func (e *BreakerError) Error() string { return "circuit breaker open: " + e.Reason }

func (e *BreakerError) Is(target error) bool { return target == ErrCircuitBreakerOpen }

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续下单失败上限，触发后保持熔断直到 Resume。
	MaxConsecutiveErrors int64

	// DailyLossLimit 当日最大亏损（结算货币，正数）。跨日自动恢复。
	DailyLossLimit float64
}

// CircuitBreaker 单个交易所的断路器。
// 高频路径（计数、熔断标志）用原子变量；当日盈亏用互斥锁保护。
type CircuitBreaker struct {
	halted     atomic.Bool
	haltReason atomic.Value // string

	consecutiveErrors atomic.Int64

	maxConsecutiveErrors atomic.Int64

	mu             sync.Mutex
	dailyLossLimit float64
	dailyPnL       float64
	dayKey         int64 // epoch 秒 / 86400（UTC 日）

	now func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	cb := &CircuitBreaker{now: now}
	cb.dayKey = cb.today()
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.mu.Lock()
	cb.dailyLossLimit = cfg.DailyLossLimit
	cb.mu.Unlock()
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.haltReason.Store(BreakerHalted)
	cb.halted.Store(true)
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		reason, _ := cb.haltReason.Load().(string)
		if reason == "" {
			reason = BreakerHalted
		}
		return &BreakerError{Reason: reason}
	}

	// 连续错误熔断
	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.haltReason.Store(BreakerErrorStreak)
		cb.halted.Store(true)
		return &BreakerError{Reason: BreakerErrorStreak}
	}

	// 当日亏损熔断（若启用）
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.dailyLossLimit > 0 {
		cb.rollDayIfNeeded()
		if cb.dailyPnL <= -cb.dailyLossLimit {
			return &BreakerError{Reason: BreakerDailyLoss}
		}
	}
	return nil
}

// OnSuccess 一次下单成功后调用，清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 一次下单失败后调用，累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// AddPnL 增量更新当日 PnL，负数表示亏损。
func (cb *CircuitBreaker) AddPnL(delta float64) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.rollDayIfNeeded()
	cb.dailyPnL += delta
	cb.mu.Unlock()
}

// Snapshot 指标快照
func (cb *CircuitBreaker) Snapshot() map[string]any {
	cb.mu.Lock()
	cb.rollDayIfNeeded()
	daily := cb.dailyPnL
	cb.mu.Unlock()
	reason, _ := cb.haltReason.Load().(string)
	return map[string]any{
		"halted":             cb.halted.Load(),
		"halt_reason":        reason,
		"consecutive_errors": cb.consecutiveErrors.Load(),
		"daily_pnl":          daily,
	}
}

func (cb *CircuitBreaker) today() int64 {
	return cb.now().Unix() / 86400
}

// rollDayIfNeeded 调用方须持有 cb.mu
func (cb *CircuitBreaker) rollDayIfNeeded() {
	key := cb.today()
	if key != cb.dayKey {
		cb.dayKey = key
		cb.dailyPnL = 0
	}
}
