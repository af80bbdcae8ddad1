package domain

import (
	"time"
)

// Action 策略给出的动作类型
type Action string

const (
	ActionEntryLongSpread  Action = "entry_long_spread"
	ActionEntryShortSpread Action = "entry_short_spread"
	ActionExitTakeProfit   Action = "exit_take_profit"
	ActionExitStopLoss     Action = "exit_stop_loss"
	ActionExitTimeout      Action = "exit_timeout"
	ActionExitReversal     Action = "exit_reversal"
	ActionExitHealth       Action = "exit_health"
	ActionNoAction         Action = "no_action"
)

// IsEntry 是否为入场动作
func (a Action) IsEntry() bool {
	return a == ActionEntryLongSpread || a == ActionEntryShortSpread
}

// IsExit 是否为出场动作
func (a Action) IsExit() bool {
	switch a {
	case ActionExitTakeProfit, ActionExitStopLoss, ActionExitTimeout, ActionExitReversal, ActionExitHealth:
		return true
	}
	return false
}

// EntrySide 入场方向
type EntrySide string

const (
	// EntrySideLongSpread 做多价差：卖 A 买 B，价差收窄时获利
	EntrySideLongSpread EntrySide = "long_spread"
	// EntrySideShortSpread 做空价差：买 A 卖 B，价差扩大时获利
	EntrySideShortSpread EntrySide = "short_spread"
)

func (s EntrySide) Opposite() EntrySide {
	if s == EntrySideLongSpread {
		return EntrySideShortSpread
	}
	return EntrySideLongSpread
}

func (s EntrySide) Valid() bool {
	return s == EntrySideLongSpread || s == EntrySideShortSpread
}

// EntrySideFor 由入场动作推导方向；非入场动作返回空串
func EntrySideFor(a Action) EntrySide {
	switch a {
	case ActionEntryLongSpread:
		return EntrySideLongSpread
	case ActionEntryShortSpread:
		return EntrySideShortSpread
	}
	return ""
}

// Decision 一次交易决策（由外部策略产生，本模块只读）
//
// Notional 以 A 所的计价货币为单位；PriceA / PriceB 分别为两所各自计价货币下的参考价，
// FXRate 为 B 计价 -> A 计价的观测汇率（可选，0 表示未知）。
type Decision struct {
	Action    Action
	SymbolA   string
	SymbolB   string
	Notional  float64
	SpreadPct float64
	Reason    string
	Timestamp time.Time

	PriceA float64
	PriceB float64
	FXRate float64

	// 入场
	EntrySide EntrySide

	// 出场
	RealizedPnL     float64
	HoldingDuration time.Duration
}

// Side 返回决策对应的入场方向（入场时优先使用 EntrySide 标签）
func (d Decision) Side() EntrySide {
	if d.EntrySide.Valid() {
		return d.EntrySide
	}
	return EntrySideFor(d.Action)
}

// WithNotional 返回替换了名义金额的副本
func (d Decision) WithNotional(n float64) Decision {
	d.Notional = n
	return d
}

// Mapping 返回该决策的交易对映射
func (d Decision) Mapping() SymbolMapping {
	return SymbolMapping{SymbolA: d.SymbolA, SymbolB: d.SymbolB}
}

// RouteKey 路由键（两所交易对组合）
func (d Decision) RouteKey() string {
	return d.SymbolA + "|" + d.SymbolB
}
