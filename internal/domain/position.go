package domain

import (
	"fmt"
	"strconv"
	"time"
)

// PositionState 仓位生命周期状态
type PositionState string

const (
	PositionStateOpen    PositionState = "OPEN"    // 持仓中
	PositionStateClosing PositionState = "CLOSING" // 出场单已发出
	PositionStateClosed  PositionState = "CLOSED"  // 已平仓
)

func (s PositionState) Valid() bool {
	return s == PositionStateOpen || s == PositionStateClosing || s == PositionStateClosed
}

// SymbolMapping 两所交易对映射
type SymbolMapping struct {
	SymbolA string
	SymbolB string
}

// SpreadSnapshot 入场/出场时刻的价差快照
type SpreadSnapshot struct {
	SpreadPct float64
	FXRate    float64
	PriceA    float64
	PriceB    float64
	Quantity  float64 // 基础资产数量（单腿）
	Notional  float64 // A 所计价的名义金额
	At        time.Time
}

// Position 仓位领域模型（由 positions.Store 独占，外部只读）
type Position struct {
	ID        string
	Mapping   SymbolMapping
	EntrySide EntrySide
	State     PositionState

	EntrySpreadPct float64
	EntryFXRate    float64
	EntryPriceA    float64
	EntryPriceB    float64
	Quantity       float64
	Notional       float64
	EntryTime      time.Time

	ExitTime      *time.Time
	ExitSpreadPct *float64
	ExitReason    string
	RealizedPnL   *float64
}

// IsOpen 检查仓位是否持仓中
func (p *Position) IsOpen() bool {
	return p != nil && p.State == PositionStateOpen
}

func (p *Position) IsClosed() bool {
	return p != nil && p.State == PositionStateClosed
}

// Key 仓位存储键所用的交易对（A 所）
func (p *Position) Key() string {
	return p.Mapping.SymbolA
}

// Clone 深拷贝（指针字段单独复制）
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ExitTime != nil {
		t := *p.ExitTime
		cp.ExitTime = &t
	}
	if p.ExitSpreadPct != nil {
		v := *p.ExitSpreadPct
		cp.ExitSpreadPct = &v
	}
	if p.RealizedPnL != nil {
		v := *p.RealizedPnL
		cp.RealizedPnL = &v
	}
	return &cp
}

// SpreadPnL 简化的平仓盈亏：价差变化 * 固定名义基数，按入场方向定符号。
// 做多价差在价差收窄时获利，做空价差在价差扩大时获利。
// TODO: 改为按实际成交价加权的盈亏核算（需要两腿成交均价与手续费）。
func SpreadPnL(side EntrySide, entrySpreadPct, exitSpreadPct, notionalBase float64) float64 {
	change := (exitSpreadPct - entrySpreadPct) / 100.0
	if side == EntrySideLongSpread {
		return -change * notionalBase
	}
	return change * notionalBase
}

const fieldTimeLayout = time.RFC3339Nano

// Fields 序列化为扁平字段表（存储层只认 string -> string）
func (p *Position) Fields() map[string]string {
	f := map[string]string{
		"id":               p.ID,
		"symbol_a":         p.Mapping.SymbolA,
		"symbol_b":         p.Mapping.SymbolB,
		"entry_side":       string(p.EntrySide),
		"state":            string(p.State),
		"entry_spread_pct": formatFloat(p.EntrySpreadPct),
		"entry_fx_rate":    formatFloat(p.EntryFXRate),
		"entry_price_a":    formatFloat(p.EntryPriceA),
		"entry_price_b":    formatFloat(p.EntryPriceB),
		"quantity":         formatFloat(p.Quantity),
		"notional":         formatFloat(p.Notional),
		"entry_time":       p.EntryTime.UTC().Format(fieldTimeLayout),
		"exit_reason":      p.ExitReason,
	}
	if p.ExitTime != nil {
		f["exit_time"] = p.ExitTime.UTC().Format(fieldTimeLayout)
	}
	if p.ExitSpreadPct != nil {
		f["exit_spread_pct"] = formatFloat(*p.ExitSpreadPct)
	}
	if p.RealizedPnL != nil {
		f["realized_pnl"] = formatFloat(*p.RealizedPnL)
	}
	return f
}

// PositionFromFields 从扁平字段表还原仓位
func PositionFromFields(f map[string]string) (*Position, error) {
	state := PositionState(f["state"])
	if !state.Valid() {
		return nil, fmt.Errorf("invalid position state %q", f["state"])
	}
	p := &Position{
		ID:         f["id"],
		Mapping:    SymbolMapping{SymbolA: f["symbol_a"], SymbolB: f["symbol_b"]},
		EntrySide:  EntrySide(f["entry_side"]),
		State:      state,
		ExitReason: f["exit_reason"],
	}
	if p.Mapping.SymbolA == "" {
		return nil, fmt.Errorf("position missing symbol_a")
	}

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{"entry_spread_pct", &p.EntrySpreadPct},
		{"entry_fx_rate", &p.EntryFXRate},
		{"entry_price_a", &p.EntryPriceA},
		{"entry_price_b", &p.EntryPriceB},
		{"quantity", &p.Quantity},
		{"notional", &p.Notional},
	}
	for _, fl := range floats {
		if *fl.dst, err = parseFloat(f[fl.key]); err != nil {
			return nil, fmt.Errorf("field %s: %w", fl.key, err)
		}
	}
	if v := f["entry_time"]; v != "" {
		if p.EntryTime, err = time.Parse(fieldTimeLayout, v); err != nil {
			return nil, fmt.Errorf("field entry_time: %w", err)
		}
	}
	if v := f["exit_time"]; v != "" {
		t, err := time.Parse(fieldTimeLayout, v)
		if err != nil {
			return nil, fmt.Errorf("field exit_time: %w", err)
		}
		p.ExitTime = &t
	}
	if v, ok := f["exit_spread_pct"]; ok {
		x, err := parseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("field exit_spread_pct: %w", err)
		}
		p.ExitSpreadPct = &x
	}
	if v, ok := f["realized_pnl"]; ok {
		x, err := parseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("field realized_pnl: %w", err)
		}
		p.RealizedPnL = &x
	}
	return p, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
