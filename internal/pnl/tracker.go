package pnl

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/spreadarb/internal/ports"
)

const secondsPerDay = 86400

// Tracker 滚动当日盈亏（结算货币）与连续亏损计数。
//
// 日界按 epoch 秒 / 86400 计算（UTC 日），不按本地时区的午夜切换。
type Tracker struct {
	settlement string
	rates      ports.RateProvider
	now        func() time.Time

	mu                sync.Mutex
	dayKey            int64
	dailyPnL          decimal.Decimal
	consecutiveLosses int
	trades            int64
}

// Option 可选项
type Option func(*Tracker)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(settlementCurrency string, rates ports.RateProvider, opts ...Option) *Tracker {
	t := &Tracker{
		settlement: strings.ToUpper(settlementCurrency),
		rates:      rates,
		now:        time.Now,
		dailyPnL:   decimal.Zero,
	}
	for _, o := range opts {
		o(t)
	}
	t.dayKey = t.currentDay()
	return t
}

func (t *Tracker) currentDay() int64 {
	return t.now().Unix() / secondsPerDay
}

// rollDayIfNeeded 调用方需持有锁
func (t *Tracker) rollDayIfNeeded() {
	day := t.currentDay()
	if day != t.dayKey {
		t.dayKey = day
		t.dailyPnL = decimal.Zero
	}
}

// SettlementCurrency 结算货币
func (t *Tracker) SettlementCurrency() string {
	return t.settlement
}

// AddTrade 记录一笔已实现盈亏（任意货币，换算为结算货币后累加）
func (t *Tracker) AddTrade(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	converted, err := t.convert(amount, currency)
	if err != nil {
		return decimal.Zero, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDayIfNeeded()
	t.dailyPnL = t.dailyPnL.Add(converted)
	t.trades++

	// 亏损：连续计数 +1（盈利后的第一笔亏损自然从 1 开始）；非负：清零
	if converted.IsNegative() {
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}
	return converted, nil
}

func (t *Tracker) convert(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	cur := strings.ToUpper(currency)
	if cur == "" || cur == t.settlement {
		return amount, nil
	}
	if t.rates == nil {
		return decimal.Zero, fmt.Errorf("pnl: no rate provider for %s->%s", cur, t.settlement)
	}
	rate, err := t.rates.Rate(cur, t.settlement)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pnl: rate %s->%s: %w", cur, t.settlement, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("pnl: non-positive rate %s->%s: %s", cur, t.settlement, rate)
	}
	return amount.Mul(rate), nil
}

// DailyPnL 当日累计盈亏；跨过日界且尚无新成交时为 0
func (t *Tracker) DailyPnL() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentDay() != t.dayKey {
		return decimal.Zero
	}
	return t.dailyPnL
}

// ConsecutiveLosses 连续亏损笔数
func (t *Tracker) ConsecutiveLosses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveLosses
}

// Snapshot 指标快照
func (t *Tracker) Snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	daily := t.dailyPnL
	if t.currentDay() != t.dayKey {
		daily = decimal.Zero
	}
	return map[string]any{
		"daily_pnl":           daily.String(),
		"settlement_currency": t.settlement,
		"consecutive_losses":  t.consecutiveLosses,
		"trades_total":        t.trades,
	}
}
