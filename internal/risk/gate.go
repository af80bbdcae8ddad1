package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/alert"
	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
)

// PositionReader 闸门只读取持仓
type PositionReader interface {
	Get(ctx context.Context, symbolA string) *domain.Position
	ListOpen(ctx context.Context) []*domain.Position
}

// InventoryReader 库存派生指标
type InventoryReader interface {
	ImbalanceRatio(priceA, priceB float64) float64
	ExposureRisk(priceA, priceB float64) float64
}

// PnLReader 组合当日盈亏与连亏
type PnLReader interface {
	DailyPnL() decimal.Decimal
	ConsecutiveLosses() int
}

// Deps 闸门依赖。Health/Positions/Inventory/PnL 为空时跳过对应检查。
type Deps struct {
	Health    ports.HealthProvider
	Positions PositionReader
	Inventory InventoryReader
	PnL       PnLReader
	FX        ports.FXRateProvider
	Metrics   ports.MetricsRecorder
	Alerts    ports.AlertSender
	Now       func() time.Time
}

// Gate 多层风控闸门：冷却 -> venue -> route -> symbol -> portfolio -> cross_venue。
// 任何内部错误都按拒绝处理（fail-closed）。
type Gate struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	cooldowns *CooldownBook
	metrics   *GateMetrics

	breakersMu sync.Mutex
	breakers   map[string]*CircuitBreaker

	routesMu sync.Mutex
	routes   map[string]*routeState

	symbolsMu sync.Mutex
	symbols   map[string]*symbolState

	tiers []tier
}

func NewGate(cfg Config, deps Deps) *Gate {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	g := &Gate{
		cfg:       cfg.withDefaults(),
		deps:      deps,
		now:       now,
		cooldowns: NewCooldownBook(),
		metrics:   newGateMetrics(),
		breakers:  make(map[string]*CircuitBreaker),
		routes:    make(map[string]*routeState),
		symbols:   make(map[string]*symbolState),
	}
	g.tiers = []tier{
		{name: domain.TierVenue, eval: g.checkVenue},
		{name: domain.TierRoute, entryOnly: true, eval: g.checkRoute},
		{name: domain.TierSymbol, entryOnly: true, eval: g.checkSymbol},
		{name: domain.TierPortfolio, eval: g.checkPortfolio},
		{name: domain.TierCrossVenue, entryOnly: true, eval: g.checkCrossVenue},
	}
	return g
}

// tierFunc 返回 nil 表示放行；返回降级结果时继续后续层级。
type tierFunc func(ctx context.Context, d domain.Decision, st *evalState) (*domain.RiskDecision, error)

type tier struct {
	name      domain.RiskTier
	entryOnly bool
	eval      tierFunc
}

// evalState 单次 Check 内共享的派生量
type evalState struct {
	now      time.Time
	priceA   float64
	priceB   float64 // 已换算到 A 所计价
	notional float64 // 降级后会被更新
	degrade  *domain.RiskDecision

	open      []*domain.Position
	openReady bool
}

func (st *evalState) openPositions(ctx context.Context, r PositionReader) []*domain.Position {
	if !st.openReady {
		if r != nil {
			st.open = r.ListOpen(ctx)
		}
		st.openReady = true
	}
	return st.open
}

// Check 对一个决策做准入判断。
func (g *Gate) Check(ctx context.Context, d domain.Decision) (rd domain.RiskDecision) {
	stage := domain.TierCrossVenue
	defer func() {
		if r := recover(); r != nil {
			rd = domain.Block(stage, domain.ReasonInternalError, map[string]any{"panic": fmt.Sprint(r)})
			logger.WithFields(logrus.Fields{
				"symbol": d.SymbolA,
				"tier":   stage,
			}).Errorf("[risk] 风控检查 panic，按拒绝处理: %v", r)
		}
		g.finish(ctx, d, rd)
	}()

	rd, err := g.evaluate(ctx, d, &stage)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"symbol": d.SymbolA,
			"tier":   stage,
		}).Errorf("[risk] 风控检查出错，按拒绝处理: %v", err)
		return domain.Block(stage, domain.ReasonInternalError, map[string]any{"error": err.Error()})
	}
	return rd
}

func (g *Gate) evaluate(ctx context.Context, d domain.Decision, stage *domain.RiskTier) (domain.RiskDecision, error) {
	now := g.now()

	// 冷却优先于一切层级
	if until, reason, ok := g.cooldowns.Active(d.SymbolA, now); ok {
		return domain.Block(domain.TierCrossVenue, domain.ReasonCooldown, map[string]any{
			"cooldown_reason": reason,
			"remaining_sec":   until.Sub(now).Seconds(),
		}).WithCooldown(until), nil
	}

	if d.Action == domain.ActionNoAction {
		rd := domain.Allow()
		rd.ReasonCode = domain.ReasonNoAction
		return rd, nil
	}

	st := &evalState{now: now, notional: d.Notional}
	if err := g.referencePrices(ctx, d, st); err != nil {
		return domain.RiskDecision{}, err
	}

	entry := d.Action.IsEntry()
	for _, t := range g.tiers {
		if t.entryOnly && !entry {
			continue
		}
		*stage = t.name
		res, err := t.eval(ctx, d.WithNotional(st.notional), st)
		if err != nil {
			return domain.RiskDecision{}, err
		}
		if res == nil {
			continue
		}
		if !res.Allowed {
			return *res, nil
		}
		if res.Degraded() {
			st.notional = *res.ReducedNotional
			st.degrade = res
		}
	}

	if st.degrade != nil {
		return *st.degrade, nil
	}
	return domain.Allow(), nil
}

// referencePrices 计算 A 计价下两所的参考价
func (g *Gate) referencePrices(ctx context.Context, d domain.Decision, st *evalState) error {
	fx := d.FXRate
	if fx <= 0 && g.deps.FX != nil {
		if r, err := g.deps.FX.FXRate(ctx); err == nil && r.IsPositive() {
			fx = r.InexactFloat64()
		}
	}
	if fx <= 0 {
		fx = g.cfg.DefaultFXRate
	}
	if fx <= 0 {
		fx = 1
	}

	st.priceA = d.PriceA
	st.priceB = d.PriceB * fx
	if st.priceB <= 0 {
		st.priceB = st.priceA
	}
	if st.priceA <= 0 {
		st.priceA = st.priceB
	}
	if st.priceA < 0 || st.priceB < 0 {
		return fmt.Errorf("negative reference price: a=%v b=%v", d.PriceA, d.PriceB)
	}
	return nil
}

// finish 计数、指标、告警；任何一个落点失败都不影响返回值
func (g *Gate) finish(ctx context.Context, d domain.Decision, rd domain.RiskDecision) {
	g.metrics.observe(rd)

	if rd.Allowed && !rd.Degraded() {
		return
	}
	if !rd.Allowed {
		logger.WithFields(logrus.Fields{
			"symbol": d.SymbolA,
			"action": d.Action,
			"tier":   rd.Tier,
			"reason": rd.ReasonCode,
		}).Infof("[risk] 拒绝 %s", d.SymbolA)
	}

	if g.deps.Metrics != nil {
		g.recordMetric(d, rd)
	}

	if !rd.Allowed && g.deps.Alerts != nil && alertable(rd.ReasonCode) {
		meta := map[string]string{
			"symbol": d.SymbolA,
			"action": string(d.Action),
			"tier":   string(rd.Tier),
			"reason": rd.ReasonCode,
		}
		title := fmt.Sprintf("risk block: %s", rd.ReasonCode)
		msg := fmt.Sprintf("%s %s blocked at %s tier", d.Action, d.SymbolA, rd.Tier)
		alert.Dispatch(g.deps.Alerts, severityFor(rd.ReasonCode), title, msg, meta)
	}
}

func (g *Gate) recordMetric(d domain.Decision, rd domain.RiskDecision) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SinkPanics.Add(1)
			logger.Warnf("[risk] 指标落点 panic: %v", r)
		}
	}()
	g.deps.Metrics.RecordRiskDecision(d, rd, map[string]string{"symbol": d.SymbolA})
}

// 冷却命中本身不再告警（冷却设置时已经告警过）
func alertable(reason string) bool {
	return reason != domain.ReasonCooldown && reason != domain.ReasonRouteCooldown
}

func severityFor(reason string) string {
	switch reason {
	case domain.ReasonCrossDailyLossLimit,
		domain.ReasonCrossConsecutiveLosses,
		domain.ReasonPortfolioDailyLoss,
		domain.ReasonVenueDailyLoss,
		domain.ReasonVenueErrorStreak,
		domain.ReasonVenueHalted,
		domain.ReasonInternalError:
		return alert.SeverityCritical
	}
	return alert.SeverityWarning
}

// SetCooldown 手动设置 symbol 冷却
func (g *Gate) SetCooldown(symbolA string, d time.Duration, reason string) time.Time {
	return g.cooldowns.Set(symbolA, g.now().Add(d), reason)
}

func (g *Gate) ClearCooldown(symbolA string) {
	g.cooldowns.Clear(symbolA)
}

// Cooldowns 当前仍有效的 symbol 冷却
func (g *Gate) Cooldowns() map[string]Cooldown {
	return g.cooldowns.Snapshot(g.now())
}

// RestoreCooldowns 恢复持久化的冷却，已过期的忽略。返回恢复的条数。
func (g *Gate) RestoreCooldowns(items map[string]Cooldown) int {
	now := g.now()
	n := 0
	for sym, c := range items {
		if !now.Before(c.Until) {
			continue
		}
		g.cooldowns.Set(sym, c.Until, c.Reason)
		n++
	}
	return n
}

// Halt 手动熔断某个交易所
func (g *Gate) Halt(venueID string) {
	g.breaker(venueID).Halt()
	logger.Warnf("[risk] 交易所 %s 已手动熔断", venueID)
}

func (g *Gate) Resume(venueID string) {
	g.breaker(venueID).Resume()
	logger.Infof("[risk] 交易所 %s 已恢复", venueID)
}

// OnLegResult 执行器回报单腿下单结果，驱动交易所断路器的连续错误计数
func (g *Gate) OnLegResult(venueID string, ok bool) {
	b := g.breaker(venueID)
	if ok {
		b.OnSuccess()
	} else {
		b.OnError()
	}
}

func (g *Gate) breaker(venueID string) *CircuitBreaker {
	g.breakersMu.Lock()
	defer g.breakersMu.Unlock()
	b, ok := g.breakers[venueID]
	if !ok {
		b = NewCircuitBreaker(CircuitBreakerConfig{
			MaxConsecutiveErrors: g.cfg.Venue.MaxConsecutiveErrors,
			DailyLossLimit:       g.cfg.Venue.MaxDailyLoss,
		}, g.now)
		g.breakers[venueID] = b
	}
	return b
}

// GetMetrics 闸门指标快照
func (g *Gate) GetMetrics() map[string]any {
	out := g.metrics.Snapshot()
	now := g.now()
	cds := make(map[string]any)
	for sym, e := range g.cooldowns.Snapshot(now) {
		cds[sym] = map[string]any{"until": e.Until, "reason": e.Reason}
	}
	out["active_cooldowns"] = cds

	g.breakersMu.Lock()
	venues := make(map[string]any, len(g.breakers))
	for id, b := range g.breakers {
		venues[id] = b.Snapshot()
	}
	g.breakersMu.Unlock()
	out["venues"] = venues
	return out
}
