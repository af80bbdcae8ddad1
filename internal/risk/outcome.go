package risk

import (
	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/pkg/logger"
)

// Outcome 一次执行结束后的反馈
type Outcome struct {
	SymbolA string
	Route   string
	Success bool // 执行状态为 success

	// RealizedPnL 结算货币下的已实现盈亏；HasPnL=false 时忽略
	RealizedPnL float64
	HasPnL      bool
}

// OutcomeFromResult 由执行结果构造反馈；pnl 为已换算到结算货币的盈亏（可为 nil）
func OutcomeFromResult(r domain.ExecutionResult, pnl *float64) Outcome {
	o := Outcome{
		SymbolA: r.Decision.SymbolA,
		Route:   r.Decision.RouteKey(),
		Success: r.Status == domain.ExecSuccess,
	}
	if pnl != nil {
		o.RealizedPnL = *pnl
		o.HasPnL = true
	}
	return o
}

// RecordOutcome 更新路由评分、路由连亏、单币种与交易所当日盈亏
func (g *Gate) RecordOutcome(o Outcome) {
	now := g.now()
	window := g.cfg.Route.ScoreWindow

	g.routesMu.Lock()
	r := g.route(o.Route)
	r.push(o.Success, window)
	if o.HasPnL {
		if o.RealizedPnL < 0 {
			r.consecutiveLosses++
		} else {
			r.consecutiveLosses = 0
		}
	}
	losses := r.consecutiveLosses
	g.routesMu.Unlock()

	if !o.HasPnL {
		return
	}

	day := now.Unix() / 86400
	g.symbolsMu.Lock()
	s, ok := g.symbols[o.SymbolA]
	if !ok {
		s = &symbolState{dayKey: day}
		g.symbols[o.SymbolA] = s
	}
	if s.dayKey != day {
		s.dayKey = day
		s.dailyPnL = 0
	}
	s.dailyPnL += o.RealizedPnL
	g.symbolsMu.Unlock()

	// 两腿各在一个交易所，盈亏同时计入两边
	for _, venue := range []string{g.cfg.VenueA, g.cfg.VenueB} {
		if venue != "" {
			g.breaker(venue).AddPnL(o.RealizedPnL)
		}
	}

	logger.Debugf("[risk] outcome %s pnl=%.4f route_losses=%d", o.Route, o.RealizedPnL, losses)
}
