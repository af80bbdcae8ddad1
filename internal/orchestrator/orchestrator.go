package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/alert"
	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/inventory"
	"github.com/betbot/spreadarb/internal/pnl"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/internal/positions"
	"github.com/betbot/spreadarb/internal/risk"
	"github.com/betbot/spreadarb/pkg/logger"
	"github.com/betbot/spreadarb/pkg/sigchan"
)

// Executor 两腿执行器
type Executor interface {
	Execute(ctx context.Context, d domain.Decision) domain.ExecutionResult
	GetMetrics() map[string]any
}

// Gate 风控闸门的反馈面（准入检查由执行器内部调用）
type Gate interface {
	RecordOutcome(o risk.Outcome)
	GetMetrics() map[string]any
}

// PositionReader 持仓只读视图
type PositionReader interface {
	ListOpen(ctx context.Context) []*domain.Position
	Inventory(ctx context.Context) positions.Inventory
}

// Journal 执行流水
type Journal interface {
	Record(ctx context.Context, r domain.ExecutionResult) error
}

// PortfolioGauge 组合状态指标
type PortfolioGauge interface {
	SetPortfolio(dailyPnL float64, openPositions int, imbalance, exposureRisk float64)
}

// Config 编排器配置
type Config struct {
	EntryInterval time.Duration // 默认 5s
	ExitInterval  time.Duration // 默认 5s

	// PositionCurrency 仓位盈亏的计价货币（A 所计价货币，如 KRW）
	PositionCurrency string
	// DefaultFXRate B 计价 -> A 计价兜底汇率
	DefaultFXRate float64
}

func (c Config) withDefaults() Config {
	if c.EntryInterval <= 0 {
		c.EntryInterval = 5 * time.Second
	}
	if c.ExitInterval <= 0 {
		c.ExitInterval = 5 * time.Second
	}
	if c.DefaultFXRate <= 0 {
		c.DefaultFXRate = 1
	}
	return c
}

// Deps 编排器依赖；Journal / Alerts / Gauge / BalancesA / BalancesB / FX 可为空
type Deps struct {
	Signals   ports.SignalSource
	Executor  Executor
	Gate      Gate
	Positions PositionReader
	PnL       *pnl.Tracker
	Inventory *inventory.Tracker
	BalancesA ports.BalanceFetcher
	BalancesB ports.BalanceFetcher
	FX        ports.FXRateProvider
	Journal   Journal
	Alerts    ports.AlertSender
	Gauge     PortfolioGauge
	VenueA    string
	VenueB    string
}

// TickReport 单个 tick 的汇总
type TickReport struct {
	Kind      string                   `json:"kind"`
	Decisions []domain.Decision        `json:"-"`
	Results   []domain.ExecutionResult `json:"-"`
	Executed  int                      `json:"executed"`
	Blocked   int                      `json:"blocked"`
	Skipped   int                      `json:"skipped"`
}

// Orchestrator 每个 tick：信号 -> 执行（含准入）-> 盈亏/风控反馈/流水/库存。
// tick 之间用互斥锁串行，库存与盈亏跟踪器只在这里写入。
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu   sync.Mutex
	wake *sigchan.Chan

	priceMu sync.Mutex
	priceA  float64
	priceB  float64 // A 计价

	ticks      atomic.Int64
	decisions  atomic.Int64
	executed   atomic.Int64
	blocked    atomic.Int64
	skipped    atomic.Int64
	tickErrors atomic.Int64
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Signals == nil || deps.Executor == nil || deps.Positions == nil {
		return nil, fmt.Errorf("orchestrator: signals, executor and positions are required")
	}
	return &Orchestrator{cfg: cfg.withDefaults(), deps: deps, wake: sigchan.New(1)}, nil
}

// Trigger 请求 Run 立即执行一轮出场+入场（非阻塞，多次请求合并为一次）
func (o *Orchestrator) Trigger() {
	o.wake.Emit()
}

// RunEntryTick 拉取入场信号并逐个执行
func (o *Orchestrator) RunEntryTick(ctx context.Context) (TickReport, error) {
	return o.tick(ctx, "entry", func(ctx context.Context) ([]domain.Decision, error) {
		return o.deps.Signals.EntryDecisions(ctx)
	}, domain.Action.IsEntry)
}

// RunExitTick 对当前 OPEN 仓位拉取出场信号并逐个执行
func (o *Orchestrator) RunExitTick(ctx context.Context) (TickReport, error) {
	return o.tick(ctx, "exit", func(ctx context.Context) ([]domain.Decision, error) {
		open := o.deps.Positions.ListOpen(ctx)
		if len(open) == 0 {
			return nil, nil
		}
		return o.deps.Signals.ExitDecisions(ctx, open)
	}, domain.Action.IsExit)
}

func (o *Orchestrator) tick(
	ctx context.Context,
	kind string,
	fetch func(context.Context) ([]domain.Decision, error),
	accept func(domain.Action) bool,
) (report TickReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	report.Kind = kind
	o.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s tick panic: %v", kind, r)
		}
		if err != nil {
			o.tickErrors.Add(1)
			logger.Errorf("[orchestrator] %s tick 失败: %v", kind, err)
		}
		o.publishGauges(ctx)
	}()

	decisions, err := fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch %s decisions: %w", kind, err)
	}
	report.Decisions = decisions
	o.decisions.Add(int64(len(decisions)))

	for _, d := range decisions {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if d.Action == domain.ActionNoAction || !accept(d.Action) {
			report.Skipped++
			o.skipped.Add(1)
			continue
		}
		o.observePrices(ctx, d)
		// 准入检查前按本决策的交易对刷新库存：启动时已有的失衡也要能被看到，
		// 且快照与闸门使用的参考价属于同一个基础资产
		o.refreshInventory(ctx, d)

		res := o.deps.Executor.Execute(ctx, d)
		report.Results = append(report.Results, res)
		if res.Status == domain.ExecBlocked {
			report.Blocked++
			o.blocked.Add(1)
			continue
		}
		report.Executed++
		o.executed.Add(1)
		o.afterExecution(ctx, res)
	}

	if len(decisions) > 0 {
		logger.WithFields(logrus.Fields{
			"kind":     kind,
			"total":    len(decisions),
			"executed": report.Executed,
			"blocked":  report.Blocked,
			"skipped":  report.Skipped,
		}).Info("[orchestrator] tick 完成")
	}
	return report, nil
}

// afterExecution 单写者：盈亏、风控反馈、流水、库存
func (o *Orchestrator) afterExecution(ctx context.Context, res domain.ExecutionResult) {
	d := res.Decision
	log := logger.WithFields(logrus.Fields{
		"exec_id": res.ID,
		"symbol":  d.SymbolA,
		"status":  res.Status,
	})

	var settled *float64
	if res.RealizedPnL != nil && o.deps.PnL != nil {
		v, err := o.deps.PnL.AddTrade(decimal.NewFromFloat(*res.RealizedPnL), o.cfg.PositionCurrency)
		if err != nil {
			log.Errorf("[orchestrator] 盈亏换算失败: %v", err)
		} else {
			f := v.InexactFloat64()
			settled = &f
		}
	}

	if o.deps.Gate != nil {
		o.deps.Gate.RecordOutcome(risk.OutcomeFromResult(res, settled))
	}

	if o.deps.Journal != nil {
		if err := o.deps.Journal.Record(ctx, res); err != nil {
			log.Warnf("[orchestrator] 写执行流水失败: %v", err)
		}
	}

	switch res.Status {
	case domain.ExecPartialHedged:
		alert.Dispatch(o.deps.Alerts, alert.SeverityCritical,
			fmt.Sprintf("partial hedge: %s", d.SymbolA),
			res.Note,
			map[string]string{"exec_id": res.ID, "action": string(d.Action), "symbol": d.SymbolA})
	case domain.ExecFailed:
		alert.Dispatch(o.deps.Alerts, alert.SeverityWarning,
			fmt.Sprintf("execution failed: %s", d.SymbolA),
			res.Note,
			map[string]string{"exec_id": res.ID, "action": string(d.Action), "symbol": d.SymbolA})
	}

	if o.refreshInventory(ctx, d) {
		o.logRebalance()
	}
}

func (o *Orchestrator) fxRate(ctx context.Context, d domain.Decision) float64 {
	if o.deps.FX != nil {
		if r, err := o.deps.FX.FXRate(ctx); err == nil && r.IsPositive() {
			return r.InexactFloat64()
		}
	}
	if d.FXRate > 0 {
		return d.FXRate
	}
	return o.cfg.DefaultFXRate
}

// observePrices 记录最近一次的参考价（A 计价），用于组合指标
func (o *Orchestrator) observePrices(ctx context.Context, d domain.Decision) {
	if d.PriceA <= 0 {
		return
	}
	pb := d.PriceB * o.fxRate(ctx, d)
	if pb <= 0 {
		pb = d.PriceA
	}
	o.priceMu.Lock()
	o.priceA, o.priceB = d.PriceA, pb
	o.priceMu.Unlock()
}

func (o *Orchestrator) prices() (float64, float64) {
	o.priceMu.Lock()
	defer o.priceMu.Unlock()
	return o.priceA, o.priceB
}

// refreshInventory 拉取 d 对应交易对在两所的余额，B 所计价货币换算为 A 所计价后整体替换快照。
// 库存快照只有一份，永远是最近一个决策的基础资产；拉取失败时保留旧快照。
func (o *Orchestrator) refreshInventory(ctx context.Context, d domain.Decision) bool {
	if o.deps.Inventory == nil || o.deps.BalancesA == nil || o.deps.BalancesB == nil {
		return false
	}
	baseA, quoteA, err := o.deps.BalancesA.GetBalances(ctx, d.SymbolA)
	if err != nil {
		logger.Warnf("[orchestrator] 获取 %s 余额失败: %v", o.deps.VenueA, err)
		return false
	}
	baseB, quoteB, err := o.deps.BalancesB.GetBalances(ctx, d.SymbolB)
	if err != nil {
		logger.Warnf("[orchestrator] 获取 %s 余额失败: %v", o.deps.VenueB, err)
		return false
	}
	now := time.Now()
	fx := o.fxRate(ctx, d)
	o.deps.Inventory.UpdateInventory(
		domain.Inventory{VenueID: o.deps.VenueA, BaseBalance: baseA, QuoteBalance: quoteA, Timestamp: now},
		domain.Inventory{VenueID: o.deps.VenueB, BaseBalance: baseB, QuoteBalance: quoteB * fx, Timestamp: now},
	)
	return true
}

func (o *Orchestrator) logRebalance() {
	pa, pb := o.prices()
	if sig := o.deps.Inventory.CheckRebalance(pa, pb); sig.Needed {
		logger.WithFields(logrus.Fields{
			"imbalance": sig.ImbalanceRatio,
			"exposure":  sig.ExposureRisk,
			"action":    sig.Action,
		}).Warn("[orchestrator] 库存失衡，建议再平衡")
	}
}

func (o *Orchestrator) publishGauges(ctx context.Context) {
	if o.deps.Gauge == nil {
		return
	}
	daily := 0.0
	if o.deps.PnL != nil {
		daily = o.deps.PnL.DailyPnL().InexactFloat64()
	}
	imb, exp := 0.0, 0.0
	if o.deps.Inventory != nil {
		pa, pb := o.prices()
		imb = o.deps.Inventory.ImbalanceRatio(pa, pb)
		exp = o.deps.Inventory.ExposureRisk(pa, pb)
	}
	o.deps.Gauge.SetPortfolio(daily, o.deps.Positions.Inventory(ctx).Total, imb, exp)
}

// Run 按配置的间隔驱动出场/入场 tick，直到 ctx 结束
func (o *Orchestrator) Run(ctx context.Context) error {
	entry := time.NewTicker(o.cfg.EntryInterval)
	defer entry.Stop()
	exit := time.NewTicker(o.cfg.ExitInterval)
	defer exit.Stop()

	logger.Infof("[orchestrator] 启动 entry=%s exit=%s", o.cfg.EntryInterval, o.cfg.ExitInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[orchestrator] 停止")
			return ctx.Err()
		case <-exit.C:
			_, _ = o.RunExitTick(ctx)
		case <-entry.C:
			_, _ = o.RunEntryTick(ctx)
		case <-o.wake.C():
			_, _ = o.RunExitTick(ctx)
			_, _ = o.RunEntryTick(ctx)
		}
	}
}

// GetMetrics 汇总闸门、执行器、编排器与盈亏/持仓状态
func (o *Orchestrator) GetMetrics() map[string]any {
	ctx := context.Background()
	out := map[string]any{
		"orchestrator": map[string]any{
			"ticks":       o.ticks.Load(),
			"decisions":   o.decisions.Load(),
			"executed":    o.executed.Load(),
			"blocked":     o.blocked.Load(),
			"skipped":     o.skipped.Load(),
			"tick_errors": o.tickErrors.Load(),
		},
		"executor":  o.deps.Executor.GetMetrics(),
		"positions": o.deps.Positions.Inventory(ctx),
	}
	if o.deps.Gate != nil {
		out["gate"] = o.deps.Gate.GetMetrics()
	}
	if o.deps.PnL != nil {
		out["pnl"] = o.deps.PnL.Snapshot()
	}
	if o.deps.Inventory != nil {
		pa, pb := o.prices()
		out["inventory"] = o.deps.Inventory.CheckRebalance(pa, pb)
	}
	return out
}
