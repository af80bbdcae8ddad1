package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/execution"
	"github.com/betbot/spreadarb/internal/fx"
	"github.com/betbot/spreadarb/internal/inventory"
	"github.com/betbot/spreadarb/internal/pnl"
	"github.com/betbot/spreadarb/internal/positions"
	"github.com/betbot/spreadarb/internal/risk"
	"github.com/betbot/spreadarb/internal/venue/paper"
	"github.com/betbot/spreadarb/pkg/kvstore"
)

type scriptedSignals struct {
	entries  []domain.Decision
	exits    func(open []*domain.Position) []domain.Decision
	err      error
	exitSeen int
}

func (s *scriptedSignals) EntryDecisions(context.Context) ([]domain.Decision, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := s.entries
	s.entries = nil
	return out, nil
}

func (s *scriptedSignals) ExitDecisions(_ context.Context, open []*domain.Position) ([]domain.Decision, error) {
	s.exitSeen++
	if s.exits == nil {
		return nil, nil
	}
	return s.exits(open), nil
}

type memJournal struct {
	mu      sync.Mutex
	records []domain.ExecutionResult
}

func (j *memJournal) Record(_ context.Context, r domain.ExecutionResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

type gaugeSpy struct {
	daily float64
	open  int
	calls int
}

func (g *gaugeSpy) SetPortfolio(daily float64, open int, _, _ float64) {
	g.daily, g.open = daily, open
	g.calls++
}

type alertSpy struct {
	mu     sync.Mutex
	titles []string
}

func (a *alertSpy) SendAlert(_ context.Context, severity, title, _ string, _ map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, severity+":"+title)
	return nil
}

func (a *alertSpy) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

type harness struct {
	orch    *Orchestrator
	signals *scriptedSignals
	a, b    *paper.Venue
	store   *positions.Store
	gate    *risk.Gate
	pnl     *pnl.Tracker
	inv     *inventory.Tracker
	journal *memJournal
	gauge   *gaugeSpy
	alerts  *alertSpy
}

// newHarness 可选地改写两所纸面账户的初始余额
func newHarness(t *testing.T, setup ...func(a, b *paper.Config)) *harness {
	t.Helper()
	cfgA := paper.Config{ID: "upbit", Credentials: true, BaseBalance: 1, QuoteBalance: 100_000_000}
	cfgB := paper.Config{ID: "binance", Credentials: true, BaseBalance: 1, QuoteBalance: 100_000}
	for _, fn := range setup {
		fn(&cfgA, &cfgB)
	}
	h := &harness{
		signals: &scriptedSignals{},
		a:       paper.New(cfgA),
		b:       paper.New(cfgB),
		store:   positions.NewStore(kvstore.NewMemory(), positions.Config{}),
		journal: &memJournal{},
		gauge:   &gaugeSpy{},
		alerts:  &alertSpy{},
	}
	rate := fx.NewStatic(decimal.NewFromInt(1300))
	h.pnl = pnl.NewTracker("KRW", fx.NewTable(map[string]decimal.Decimal{"USDT/KRW": decimal.NewFromInt(1300)}))
	h.inv = inventory.NewTracker(inventory.Config{})

	h.gate = risk.NewGate(risk.DefaultConfig("upbit", "binance"), risk.Deps{
		Positions: h.store,
		Inventory: h.inv,
		PnL:       h.pnl,
		FX:        rate,
	})
	exec, err := execution.NewExecutor(execution.Config{
		DefaultFXRate: 1300,
		FillTimeout:   60 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}, execution.Deps{
		VenueA:      h.a,
		VenueB:      h.b,
		Positions:   h.store,
		Gate:        h.gate,
		FX:          rate,
		LegObserver: h.gate,
	})
	require.NoError(t, err)

	h.orch, err = New(Config{PositionCurrency: "KRW"}, Deps{
		Signals:   h.signals,
		Executor:  exec,
		Gate:      h.gate,
		Positions: h.store,
		PnL:       h.pnl,
		Inventory: h.inv,
		BalancesA: h.a,
		BalancesB: h.b,
		FX:        rate,
		Journal:   h.journal,
		Alerts:    h.alerts,
		Gauge:     h.gauge,
		VenueA:    "upbit",
		VenueB:    "binance",
	})
	require.NoError(t, err)
	return h
}

func entry() domain.Decision {
	return domain.Decision{
		Action:    domain.ActionEntryLongSpread,
		SymbolA:   "BTC-KRW",
		SymbolB:   "BTCUSDT",
		Notional:  1_300_000,
		SpreadPct: 1.5,
		PriceA:    130_000_000,
		PriceB:    100_000,
		EntrySide: domain.EntrySideLongSpread,
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestEntryThenExitRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signals.entries = []domain.Decision{entry()}
	rep, err := h.orch.RunEntryTick(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, domain.ExecSuccess, rep.Results[0].Status)
	assert.Equal(t, 1, rep.Executed)

	pos := h.store.Get(ctx, "BTC-KRW")
	require.NotNil(t, pos)
	assert.True(t, pos.IsOpen())

	// 库存按成交后的余额刷新，B 所计价余额换算为 A 计价
	a, b := h.inv.Snapshot()
	assert.Equal(t, "upbit", a.VenueID)
	assert.InDelta(t, 0.99, a.BaseBalance, 1e-9)
	assert.InDelta(t, (100_000-1_000)*1300.0, b.QuoteBalance, 1e-3)

	h.signals.exits = func(open []*domain.Position) []domain.Decision {
		require.Len(t, open, 1)
		return []domain.Decision{{
			Action:    domain.ActionExitTakeProfit,
			SymbolA:   open[0].Mapping.SymbolA,
			SymbolB:   open[0].Mapping.SymbolB,
			SpreadPct: 0.2,
			PriceA:    131_000_000,
			PriceB:    100_000,
		}}
	}
	rep, err = h.orch.RunExitTick(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, domain.ExecSuccess, res.Status)
	require.NotNil(t, res.RealizedPnL)

	// 已实现盈亏进入组合当日盈亏
	assert.True(t, h.pnl.DailyPnL().Equal(decimal.NewFromFloat(*res.RealizedPnL)))
	assert.Equal(t, 0, h.pnl.ConsecutiveLosses())
	assert.InDelta(t, 13_000, *res.RealizedPnL, 1e-6)

	h.journal.mu.Lock()
	assert.Len(t, h.journal.records, 2)
	h.journal.mu.Unlock()
	assert.Equal(t, 0, h.gauge.open)
	assert.Equal(t, 0, h.alerts.count())
}

func TestExitTickSkipsWithoutOpenPositions(t *testing.T) {
	h := newHarness(t)
	rep, err := h.orch.RunExitTick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Decisions)
	assert.Equal(t, 0, h.signals.exitSeen)
}

func TestBlockedDecisionsAreNotJournaled(t *testing.T) {
	h := newHarness(t)
	h.gate.Halt("binance")

	h.signals.entries = []domain.Decision{entry()}
	rep, err := h.orch.RunEntryTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Blocked)
	assert.Equal(t, 0, rep.Executed)
	assert.Empty(t, h.journal.records)
	assert.Empty(t, h.a.Placed())
	assert.Empty(t, h.b.Placed())
}

func TestWrongPhaseDecisionsAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.signals.entries = []domain.Decision{
		{Action: domain.ActionNoAction, SymbolA: "BTC-KRW"},
		{Action: domain.ActionExitStopLoss, SymbolA: "BTC-KRW"},
	}
	rep, err := h.orch.RunEntryTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Skipped)
	assert.Empty(t, rep.Results)
}

func TestPartialHedgeRaisesCriticalAlert(t *testing.T) {
	h := newHarness(t)
	h.b.SetFillMode(paper.FillNone)

	h.signals.entries = []domain.Decision{entry()}
	rep, err := h.orch.RunEntryTick(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, domain.ExecPartialHedged, rep.Results[0].Status)

	require.Eventually(t, func() bool { return h.alerts.count() == 1 }, time.Second, 5*time.Millisecond)
	h.alerts.mu.Lock()
	assert.Contains(t, h.alerts.titles[0], "critical")
	h.alerts.mu.Unlock()

	h.journal.mu.Lock()
	assert.Len(t, h.journal.records, 1)
	h.journal.mu.Unlock()
}

func TestFetchErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.signals.err = errors.New("feed down")
	_, err := h.orch.RunEntryTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed down")

	m := h.orch.GetMetrics()
	orch := m["orchestrator"].(map[string]any)
	assert.EqualValues(t, 1, orch["tick_errors"])
}

func TestGetMetricsMergesComponents(t *testing.T) {
	h := newHarness(t)
	m := h.orch.GetMetrics()
	for _, k := range []string{"orchestrator", "executor", "gate", "pnl", "positions", "inventory"} {
		assert.Contains(t, m, k)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.orch.cfg.EntryInterval = 5 * time.Millisecond
	h.orch.cfg.ExitInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestTriggerRunsImmediateTick(t *testing.T) {
	h := newHarness(t)
	h.orch.cfg.EntryInterval = time.Hour
	h.orch.cfg.ExitInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.orch.Run(ctx) }()

	h.orch.Trigger()
	require.Eventually(t, func() bool {
		m := h.orch.GetMetrics()["orchestrator"].(map[string]any)
		return m["ticks"].(int64) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestExistingImbalanceSeenBeforeFirstTrade(t *testing.T) {
	// A 所 2 BTC，B 所只有 10 万 USDT：imbalance = (2.6亿 - 1.3亿) / 3.9亿 ≈ 0.33
	h := newHarness(t, func(a, b *paper.Config) {
		a.BaseBalance, a.QuoteBalance = 2, 0
		b.BaseBalance, b.QuoteBalance = 0, 100_000
	})
	ctx := context.Background()

	short := entry()
	short.Action = domain.ActionEntryShortSpread
	short.EntrySide = domain.EntrySideShortSpread
	h.signals.entries = []domain.Decision{short}

	rep, err := h.orch.RunEntryTick(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, domain.ExecBlocked, res.Status)
	require.NotNil(t, res.Risk)
	assert.Equal(t, domain.TierCrossVenue, res.Risk.Tier)
	assert.Equal(t, domain.ReasonCrossImbalance, res.Risk.ReasonCode)
	assert.Empty(t, h.a.Placed())

	a, b := h.inv.Snapshot()
	assert.Equal(t, 2.0, a.BaseBalance)
	assert.InDelta(t, 100_000*1300.0, b.QuoteBalance, 1e-6)
	assert.InDelta(t, 1.0/3.0, h.inv.ImbalanceRatio(130_000_000, 130_000_000), 1e-9)

	// 卖 A 买 B 的方向会缓解失衡，放行
	h.signals.entries = []domain.Decision{entry()}
	rep, err = h.orch.RunEntryTick(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, domain.ExecSuccess, rep.Results[0].Status, rep.Results[0].Note)
}

// symbolBalances 按交易对返回余额，并记录查询顺序
type symbolBalances struct {
	mu    sync.Mutex
	base  map[string]float64
	calls []string
}

func (s *symbolBalances) GetBalances(_ context.Context, symbol string) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, symbol)
	return s.base[symbol], 0, nil
}

func TestInventoryFollowsDecisionSymbol(t *testing.T) {
	h := newHarness(t)
	balA := &symbolBalances{base: map[string]float64{"BTC-KRW": 1, "ETH-KRW": 20}}
	balB := &symbolBalances{base: map[string]float64{"BTCUSDT": 1, "ETHUSDT": 20}}
	h.orch.deps.BalancesA = balA
	h.orch.deps.BalancesB = balB

	eth := entry()
	eth.SymbolA, eth.SymbolB = "ETH-KRW", "ETHUSDT"
	eth.PriceA, eth.PriceB = 5_200_000, 4_000
	h.signals.entries = []domain.Decision{entry(), eth}

	rep, err := h.orch.RunEntryTick(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Results, 2)

	// 每个决策执行前后各刷新一次，且只查自己的交易对
	assert.Equal(t, []string{"BTC-KRW", "BTC-KRW", "ETH-KRW", "ETH-KRW"}, balA.calls)
	assert.Equal(t, []string{"BTCUSDT", "BTCUSDT", "ETHUSDT", "ETHUSDT"}, balB.calls)

	a, b := h.inv.Snapshot()
	assert.Equal(t, 20.0, a.BaseBalance)
	assert.Equal(t, 20.0, b.BaseBalance)
}
