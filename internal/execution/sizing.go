package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/spreadarb/internal/domain"
)

// legPlan 一次执行的两腿下单计划
type legPlan struct {
	quantity float64
	fxRate   float64
	priceA   float64
	priceB   float64
	sideA    domain.OrderSide
	sideB    domain.OrderSide
	notional float64
}

// resolveFX 汇率优先级：实时汇率 -> 决策观测值 -> 配置兜底
func (e *Executor) resolveFX(ctx context.Context, d domain.Decision) float64 {
	if e.deps.FX != nil {
		if r, err := e.deps.FX.FXRate(ctx); err == nil && r.IsPositive() {
			return r.InexactFloat64()
		}
	}
	if d.FXRate > 0 {
		return d.FXRate
	}
	return e.cfg.DefaultFXRate
}

// truncateQty 按精度向下截断，避免超出名义金额
func (e *Executor) truncateQty(q float64) float64 {
	return decimal.NewFromFloat(q).Truncate(e.cfg.QuantityPrecision).InexactFloat64()
}

// sidesFor 入场：long_spread 卖 A 买 B；short_spread 买 A 卖 B。
// 出场按持仓入场方向反向。
func sidesFor(entrySide domain.EntrySide, exit bool) (domain.OrderSide, domain.OrderSide) {
	a, b := domain.SideSell, domain.SideBuy
	if entrySide == domain.EntrySideShortSpread {
		a, b = domain.SideBuy, domain.SideSell
	}
	if exit {
		return a.Opposite(), b.Opposite()
	}
	return a, b
}

// plan 计算数量与方向。pos 仅出场时非空。
func (e *Executor) plan(ctx context.Context, d domain.Decision, pos *domain.Position) (legPlan, error) {
	p := legPlan{fxRate: e.resolveFX(ctx, d), notional: d.Notional}

	p.priceA = d.PriceA
	if p.priceA <= 0 && pos != nil {
		p.priceA = pos.EntryPriceA
	}
	if p.priceA <= 0 {
		return p, fmt.Errorf("invalid reference price for %s: %v", d.SymbolA, d.PriceA)
	}
	p.priceB = d.PriceB
	if p.priceB <= 0 {
		p.priceB = p.priceA / p.fxRate
	}

	if pos != nil {
		p.sideA, p.sideB = sidesFor(pos.EntrySide, true)
		p.quantity = pos.Quantity
		if p.quantity <= 0 {
			p.quantity = pos.Notional / p.priceA
		}
		p.notional = p.quantity * p.priceA
	} else {
		p.sideA, p.sideB = sidesFor(d.Side(), false)
		p.quantity = d.Notional / p.priceA
	}

	p.quantity = e.truncateQty(p.quantity)
	if p.quantity <= 0 || p.quantity < e.cfg.MinQuantity {
		return p, fmt.Errorf("quantity %v below minimum %v", p.quantity, e.cfg.MinQuantity)
	}
	return p, nil
}
