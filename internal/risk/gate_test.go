package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/spreadarb/internal/domain"
)

type fakeHealth map[string]domain.VenueStatus

func (f fakeHealth) GetStatus(venueID string) domain.VenueStatus {
	if s, ok := f[venueID]; ok {
		return s
	}
	return domain.VenueHealthy
}

type fakePositions struct {
	open []*domain.Position
}

func (f *fakePositions) Get(_ context.Context, symbolA string) *domain.Position {
	for _, p := range f.open {
		if p.Mapping.SymbolA == symbolA {
			return p
		}
	}
	return nil
}

func (f *fakePositions) ListOpen(context.Context) []*domain.Position { return f.open }

type fakeInventory struct {
	imbalance float64
	exposure  float64
	panics    bool
}

func (f *fakeInventory) ImbalanceRatio(float64, float64) float64 {
	if f.panics {
		panic("inventory exploded")
	}
	return f.imbalance
}

func (f *fakeInventory) ExposureRisk(float64, float64) float64 {
	if f.panics {
		panic("inventory exploded")
	}
	return f.exposure
}

type fakePnL struct {
	daily  decimal.Decimal
	losses int
}

func (f *fakePnL) DailyPnL() decimal.Decimal { return f.daily }
func (f *fakePnL) ConsecutiveLosses() int    { return f.losses }

type recordingMetrics struct {
	decisions []domain.RiskDecision
}

func (r *recordingMetrics) RecordRiskDecision(_ domain.Decision, rd domain.RiskDecision, _ map[string]string) {
	r.decisions = append(r.decisions, rd)
}

func (r *recordingMetrics) RecordExecutionResult(domain.ExecutionResult) {}

type panicMetrics struct{}

func (panicMetrics) RecordRiskDecision(domain.Decision, domain.RiskDecision, map[string]string) {
	panic("sink down")
}

func (panicMetrics) RecordExecutionResult(domain.ExecutionResult) {}

type failingFX struct{}

func (failingFX) FXRate(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("no rate")
}

var t0 = time.Unix(1_700_000_000, 0).UTC()

func bareConfig() Config {
	return Config{VenueA: "upbit", VenueB: "binance", DefaultFXRate: 1300}
}

func entry(side domain.EntrySide, notional float64) domain.Decision {
	action := domain.ActionEntryLongSpread
	if side == domain.EntrySideShortSpread {
		action = domain.ActionEntryShortSpread
	}
	return domain.Decision{
		Action:    action,
		SymbolA:   "BTC-KRW",
		SymbolB:   "BTCUSDT",
		Notional:  notional,
		SpreadPct: 1.2,
		PriceA:    130_000_000,
		PriceB:    100_000,
		EntrySide: side,
		Timestamp: t0,
	}
}

func position(symbol string, side domain.EntrySide, notional float64) *domain.Position {
	return &domain.Position{
		ID:        symbol,
		Mapping:   domain.SymbolMapping{SymbolA: symbol, SymbolB: symbol + "-B"},
		EntrySide: side,
		State:     domain.PositionStateOpen,
		Notional:  notional,
	}
}

func newTestGate(cfg Config, deps Deps, now *time.Time) *Gate {
	deps.Now = func() time.Time { return *now }
	return NewGate(cfg, deps)
}

func TestAllowWhenNothingConfigured(t *testing.T) {
	now := t0
	g := newTestGate(bareConfig(), Deps{}, &now)

	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1_000_000))
	assert.True(t, rd.Allowed)
	assert.Equal(t, domain.TierNone, rd.Tier)
	assert.Equal(t, domain.ReasonOK, rd.ReasonCode)
}

func TestNoActionAllowedWithoutTiers(t *testing.T) {
	now := t0
	g := newTestGate(bareConfig(), Deps{Health: fakeHealth{"upbit": domain.VenueDown}}, &now)

	rd := g.Check(context.Background(), domain.Decision{Action: domain.ActionNoAction, SymbolA: "BTC-KRW"})
	assert.True(t, rd.Allowed)
	assert.Equal(t, domain.ReasonNoAction, rd.ReasonCode)
}

func TestCooldownCheckedBeforeEveryTier(t *testing.T) {
	now := t0
	g := newTestGate(bareConfig(), Deps{Health: fakeHealth{"upbit": domain.VenueDown}}, &now)
	until := g.SetCooldown("BTC-KRW", 10*time.Minute, "manual")

	for _, d := range []domain.Decision{
		entry(domain.EntrySideLongSpread, 1_000_000),
		{Action: domain.ActionExitTakeProfit, SymbolA: "BTC-KRW", SymbolB: "BTCUSDT"},
	} {
		rd := g.Check(context.Background(), d)
		assert.False(t, rd.Allowed)
		assert.Equal(t, domain.TierCrossVenue, rd.Tier)
		assert.Equal(t, domain.ReasonCooldown, rd.ReasonCode)
		require.NotNil(t, rd.CooldownUntil)
		assert.Equal(t, until, *rd.CooldownUntil)
	}

	// 过期后回到正常层级判断（此处 A 所 down）
	now = now.Add(11 * time.Minute)
	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1_000_000))
	assert.Equal(t, domain.TierVenue, rd.Tier)
	assert.Equal(t, domain.ReasonVenueUnhealthy, rd.ReasonCode)

	g.SetCooldown("BTC-KRW", time.Minute, "manual")
	g.ClearCooldown("BTC-KRW")
	rd = g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1_000_000))
	assert.Equal(t, domain.ReasonVenueUnhealthy, rd.ReasonCode)
}

func TestVenueTierAppliesToExits(t *testing.T) {
	now := t0
	g := newTestGate(bareConfig(), Deps{Health: fakeHealth{"binance": domain.VenueFrozen}}, &now)

	rd := g.Check(context.Background(), domain.Decision{Action: domain.ActionExitStopLoss, SymbolA: "BTC-KRW"})
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierVenue, rd.Tier)
	assert.Equal(t, "binance", rd.Details["venue"])

	g2 := newTestGate(bareConfig(), Deps{Health: fakeHealth{"binance": domain.VenueDegraded}}, &now)
	assert.True(t, g2.Check(context.Background(), entry(domain.EntrySideLongSpread, 1)).Allowed)
}

func TestVenueErrorStreakAndManualHalt(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Venue.MaxConsecutiveErrors = 2
	g := newTestGate(cfg, Deps{}, &now)
	ctx := context.Background()

	g.OnLegResult("upbit", false)
	assert.True(t, g.Check(ctx, entry(domain.EntrySideLongSpread, 1)).Allowed)
	g.OnLegResult("upbit", false)
	rd := g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.Equal(t, domain.ReasonVenueErrorStreak, rd.ReasonCode)

	// 熔断保持到 Resume
	g.OnLegResult("upbit", true)
	rd = g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.False(t, rd.Allowed)

	g.Resume("upbit")
	assert.True(t, g.Check(ctx, entry(domain.EntrySideLongSpread, 1)).Allowed)

	g.Halt("binance")
	rd = g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.Equal(t, domain.ReasonVenueHalted, rd.ReasonCode)
	assert.Equal(t, "binance", rd.Details["venue"])
}

func TestVenueDailyLossFromOutcomes(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Venue.MaxDailyLoss = 100
	g := newTestGate(cfg, Deps{}, &now)

	g.RecordOutcome(Outcome{SymbolA: "BTC-KRW", Route: "BTC-KRW|BTCUSDT", HasPnL: true, RealizedPnL: -150})
	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1))
	assert.Equal(t, domain.ReasonVenueDailyLoss, rd.ReasonCode)

	// 止损出场不受当日亏损熔断影响
	stop := domain.Decision{Action: domain.ActionExitStopLoss, SymbolA: "BTC-KRW", SymbolB: "BTCUSDT", EntrySide: domain.EntrySideLongSpread}
	assert.True(t, g.Check(context.Background(), stop).Allowed)

	// 跨 UTC 日自动恢复
	now = now.Add(24 * time.Hour)
	assert.True(t, g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1)).Allowed)
}

func TestRouteLossStreakSetsCooldown(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Route.MaxConsecutiveLosses = 3
	cfg.Route.Cooldown = 5 * time.Minute
	g := newTestGate(cfg, Deps{}, &now)
	ctx := context.Background()
	d := entry(domain.EntrySideLongSpread, 1)

	for i := 0; i < 3; i++ {
		g.RecordOutcome(Outcome{SymbolA: d.SymbolA, Route: d.RouteKey(), Success: true, HasPnL: true, RealizedPnL: -1})
	}

	rd := g.Check(ctx, d)
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierRoute, rd.Tier)
	assert.Equal(t, domain.ReasonRouteLossStreak, rd.ReasonCode)
	require.NotNil(t, rd.CooldownUntil)
	assert.Equal(t, now.Add(5*time.Minute), *rd.CooldownUntil)

	rd = g.Check(ctx, d)
	assert.Equal(t, domain.ReasonRouteCooldown, rd.ReasonCode)

	// 其他路由不受影响
	other := d
	other.SymbolA, other.SymbolB = "ETH-KRW", "ETHUSDT"
	assert.True(t, g.Check(ctx, other).Allowed)

	now = now.Add(6 * time.Minute)
	assert.True(t, g.Check(ctx, d).Allowed)
}

func TestRouteLowScore(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Route.MinScore = 0.5
	cfg.Route.MinScoreSamples = 4
	g := newTestGate(cfg, Deps{}, &now)
	d := entry(domain.EntrySideLongSpread, 1)

	for i := 0; i < 3; i++ {
		g.RecordOutcome(Outcome{SymbolA: d.SymbolA, Route: d.RouteKey(), Success: false})
	}
	// 样本不足时不评分
	assert.True(t, g.Check(context.Background(), d).Allowed)

	g.RecordOutcome(Outcome{SymbolA: d.SymbolA, Route: d.RouteKey(), Success: true})
	rd := g.Check(context.Background(), d)
	assert.Equal(t, domain.ReasonRouteLowScore, rd.ReasonCode)
	assert.InDelta(t, 0.25, rd.Details["score"], 1e-9)
}

func TestSymbolExposureDegradeAndBlock(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Symbol.Capital = 1_000_000
	cfg.Symbol.MaxExposureRatio = 0.1
	positions := &fakePositions{open: []*domain.Position{position("BTC-KRW", domain.EntrySideLongSpread, 60_000)}}
	g := newTestGate(cfg, Deps{Positions: positions}, &now)

	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 50_000))
	assert.True(t, rd.Allowed)
	assert.True(t, rd.Degraded())
	assert.Equal(t, domain.TierSymbol, rd.Tier)
	assert.Equal(t, domain.ReasonSymbolExposureDegraded, rd.ReasonCode)
	require.NotNil(t, rd.ReducedNotional)
	assert.InDelta(t, 40_000, *rd.ReducedNotional, 1e-6)

	cfg.Symbol.MinNotional = 50_000
	g = newTestGate(cfg, Deps{Positions: positions}, &now)
	rd = g.Check(context.Background(), entry(domain.EntrySideLongSpread, 50_000))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.ReasonSymbolExposureLimit, rd.ReasonCode)

	// 在额度内不降级
	rd = g.Check(context.Background(), entry(domain.EntrySideLongSpread, 10_000))
	assert.True(t, rd.Allowed)
	assert.False(t, rd.Degraded())
}

func TestDegradedNotionalFlowsIntoLaterTiers(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Symbol.Capital = 1_000_000
	cfg.Symbol.MaxExposureRatio = 0.1
	cfg.Portfolio.MaxOpenPositions = 1
	positions := &fakePositions{open: []*domain.Position{position("ETH-KRW", domain.EntrySideLongSpread, 10)}}
	g := newTestGate(cfg, Deps{Positions: positions}, &now)

	// 降级之后仍会被组合层拦截
	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 500_000))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.ReasonPortfolioMaxPositions, rd.ReasonCode)
}

func TestSymbolDrawdown(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Symbol.MaxDailyDrawdown = 1000
	g := newTestGate(cfg, Deps{}, &now)
	d := entry(domain.EntrySideLongSpread, 1)

	g.RecordOutcome(Outcome{SymbolA: d.SymbolA, Route: d.RouteKey(), Success: true, HasPnL: true, RealizedPnL: -1200})
	rd := g.Check(context.Background(), d)
	assert.Equal(t, domain.ReasonSymbolDrawdown, rd.ReasonCode)

	other := d
	other.SymbolA = "ETH-KRW"
	assert.True(t, g.Check(context.Background(), other).Allowed)
}

func TestPortfolioDailyLossIsHardBlock(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Portfolio.MaxDailyLoss = 500
	g := newTestGate(cfg, Deps{PnL: &fakePnL{daily: decimal.NewFromInt(-600)}}, &now)
	ctx := context.Background()

	rd := g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierPortfolio, rd.Tier)
	assert.Equal(t, domain.ReasonPortfolioDailyLoss, rd.ReasonCode)
	assert.Nil(t, rd.CooldownUntil)

	// 超过当日亏损上限后仍然可以平仓
	for _, a := range []domain.Action{domain.ActionExitStopLoss, domain.ActionExitHealth, domain.ActionExitTimeout, domain.ActionExitTakeProfit} {
		rd = g.Check(ctx, domain.Decision{Action: a, SymbolA: "BTC-KRW", SymbolB: "BTCUSDT", EntrySide: domain.EntrySideLongSpread})
		assert.True(t, rd.Allowed, "%s: %s", a, rd.ReasonCode)
	}
}

func TestPortfolioImbalanceCeiling(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.Portfolio.MaxImbalance = 0.8
	g := newTestGate(cfg, Deps{Inventory: &fakeInventory{imbalance: -0.85}}, &now)

	rd := g.Check(context.Background(), entry(domain.EntrySideShortSpread, 1))
	assert.Equal(t, domain.ReasonPortfolioImbalance, rd.ReasonCode)
}

func TestCrossImbalanceOnlyBlocksWorseningSide(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.CrossVenue.MaxImbalance = 0.3
	cfg.CrossVenue.MaxExposureRisk = 0.9
	inv := &fakeInventory{imbalance: 0.4, exposure: 0.8}
	g := newTestGate(cfg, Deps{Inventory: inv}, &now)
	ctx := context.Background()

	// A 所超配：long_spread 卖 A 买 B，纠正失衡
	rd := g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.True(t, rd.Allowed)

	rd = g.Check(ctx, entry(domain.EntrySideShortSpread, 1))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierCrossVenue, rd.Tier)
	assert.Equal(t, domain.ReasonCrossImbalance, rd.ReasonCode)

	inv.imbalance = -0.4
	assert.True(t, g.Check(ctx, entry(domain.EntrySideShortSpread, 1)).Allowed)
	assert.Equal(t, domain.ReasonCrossImbalance, g.Check(ctx, entry(domain.EntrySideLongSpread, 1)).ReasonCode)

	inv.exposure = 0.95
	assert.Equal(t, domain.ReasonCrossExposureLimit, g.Check(ctx, entry(domain.EntrySideShortSpread, 1)).ReasonCode)
}

func TestDirectionalBiasSkippedBelowMinSample(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.CrossVenue.MaxDirectionalBias = 0.6
	cfg.CrossVenue.MinBiasSample = 4
	positions := &fakePositions{}
	for _, s := range []string{"ETH-KRW", "XRP-KRW", "SOL-KRW"} {
		positions.open = append(positions.open, position(s, domain.EntrySideLongSpread, 10))
	}
	g := newTestGate(cfg, Deps{Positions: positions}, &now)
	ctx := context.Background()

	assert.True(t, g.Check(ctx, entry(domain.EntrySideLongSpread, 1)).Allowed)

	positions.open = append(positions.open, position("ADA-KRW", domain.EntrySideLongSpread, 10))
	rd := g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.Equal(t, domain.ReasonCrossDirectionalBias, rd.ReasonCode)
	assert.Equal(t, 4, rd.Details["same_side"])

	// 反方向入场降低偏置，放行
	assert.True(t, g.Check(ctx, entry(domain.EntrySideShortSpread, 1)).Allowed)

	// 出场不看方向偏置
	assert.True(t, g.Check(ctx, domain.Decision{Action: domain.ActionExitReversal, SymbolA: "ETH-KRW"}).Allowed)
}

func TestCircuitBreakerDailyLossSetsCooldown(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.CrossVenue.DailyLossLimit = -1_000_000
	pnl := &fakePnL{daily: decimal.NewFromInt(-1_500_000)}
	g := newTestGate(cfg, Deps{PnL: pnl}, &now)
	ctx := context.Background()

	rd := g.Check(ctx, entry(domain.EntrySideLongSpread, 1_000_000))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierCrossVenue, rd.Tier)
	assert.Equal(t, domain.ReasonCrossDailyLossLimit, rd.ReasonCode)
	require.NotNil(t, rd.CooldownUntil)
	assert.Equal(t, now.Add(time.Hour), *rd.CooldownUntil)

	// 亏损恢复后，冷却仍然生效
	pnl.daily = decimal.Zero
	now = now.Add(time.Minute)
	rd = g.Check(ctx, entry(domain.EntrySideLongSpread, 1_000_000))
	assert.Equal(t, domain.ReasonCooldown, rd.ReasonCode)

	now = t0.Add(time.Hour + time.Second)
	assert.True(t, g.Check(ctx, entry(domain.EntrySideLongSpread, 1_000_000)).Allowed)
}

func TestCircuitBreakerConsecutiveLossesUsesOwnCooldown(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.CrossVenue.MaxConsecutiveLosses = 3
	g := newTestGate(cfg, Deps{PnL: &fakePnL{losses: 3}}, &now)

	rd := g.Check(context.Background(), entry(domain.EntrySideShortSpread, 1))
	assert.Equal(t, domain.ReasonCrossConsecutiveLosses, rd.ReasonCode)
	require.NotNil(t, rd.CooldownUntil)
	assert.Equal(t, now.Add(30*time.Minute), *rd.CooldownUntil)
}

func TestInternalErrorFailsClosed(t *testing.T) {
	now := t0
	cfg := bareConfig()
	cfg.CrossVenue.MaxExposureRisk = 0.5
	g := newTestGate(cfg, Deps{Inventory: &fakeInventory{panics: true}}, &now)

	rd := g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierCrossVenue, rd.Tier)
	assert.Equal(t, domain.ReasonInternalError, rd.ReasonCode)

	cfg = bareConfig()
	cfg.Portfolio.MaxImbalance = 0.5
	g = newTestGate(cfg, Deps{Inventory: &fakeInventory{panics: true}}, &now)
	rd = g.Check(context.Background(), entry(domain.EntrySideLongSpread, 1))
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.TierPortfolio, rd.Tier)
	assert.Equal(t, domain.ReasonInternalError, rd.ReasonCode)

	m := g.GetMetrics()
	assert.Equal(t, int64(1), m["blocked_total"])
	assert.Equal(t, int64(1), m["blocks_by_reason"].(map[string]int64)[domain.ReasonInternalError])
}

func TestNegativePriceIsInternalError(t *testing.T) {
	now := t0
	g := newTestGate(bareConfig(), Deps{FX: failingFX{}}, &now)
	d := entry(domain.EntrySideLongSpread, 1)
	d.PriceA = -1
	d.PriceB = -1

	rd := g.Check(context.Background(), d)
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.ReasonInternalError, rd.ReasonCode)
}

func TestMetricsAndSinks(t *testing.T) {
	now := t0
	rec := &recordingMetrics{}
	g := newTestGate(bareConfig(), Deps{
		Health:  fakeHealth{"upbit": domain.VenueDown},
		Metrics: rec,
	}, &now)
	ctx := context.Background()

	g.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	g.Check(ctx, entry(domain.EntrySideShortSpread, 1))
	g.SetCooldown("ETH-KRW", time.Minute, "manual")
	d := entry(domain.EntrySideLongSpread, 1)
	d.SymbolA = "ETH-KRW"
	g.Check(ctx, d)

	m := g.GetMetrics()
	assert.Equal(t, int64(3), m["checks_total"])
	assert.Equal(t, int64(3), m["blocked_total"])
	byTier := m["blocks_by_tier"].(map[string]int64)
	assert.Equal(t, int64(2), byTier[string(domain.TierVenue)])
	assert.Equal(t, int64(1), byTier[string(domain.TierCrossVenue)])
	assert.Contains(t, m["active_cooldowns"], "ETH-KRW")
	assert.Len(t, rec.decisions, 3)

	// 指标落点 panic 不影响结果
	g2 := newTestGate(bareConfig(), Deps{Health: fakeHealth{"upbit": domain.VenueDown}, Metrics: panicMetrics{}}, &now)
	rd := g2.Check(ctx, entry(domain.EntrySideLongSpread, 1))
	assert.Equal(t, domain.ReasonVenueUnhealthy, rd.ReasonCode)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, "critical", severityFor(domain.ReasonCrossDailyLossLimit))
	assert.Equal(t, "critical", severityFor(domain.ReasonVenueErrorStreak))
	assert.Equal(t, "warning", severityFor(domain.ReasonCrossImbalance))
	assert.False(t, alertable(domain.ReasonCooldown))
}

func TestCooldownsSurviveRestore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	g1 := NewGate(DefaultConfig("upbit", "binance"), Deps{Now: clock})
	g1.SetCooldown("BTC-KRW", time.Hour, domain.ReasonCrossDailyLossLimit)
	g1.SetCooldown("ETH-KRW", time.Minute, domain.ReasonCrossConsecutiveLosses)
	saved := g1.Cooldowns()
	require.Len(t, saved, 2)

	now = now.Add(2 * time.Minute)
	g2 := NewGate(DefaultConfig("upbit", "binance"), Deps{Now: clock})
	assert.Equal(t, 1, g2.RestoreCooldowns(saved), "过期的 ETH 冷却不恢复")

	rd := g2.Check(context.Background(), domain.Decision{
		Action:   domain.ActionEntryLongSpread,
		SymbolA:  "BTC-KRW",
		SymbolB:  "BTCUSDT",
		Notional: 1_000_000,
		PriceA:   130_000_000,
		PriceB:   100_000,
	})
	assert.False(t, rd.Allowed)
	assert.Equal(t, domain.ReasonCooldown, rd.ReasonCode)
}
