package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
)

// 执行器自身给出的拒绝原因（Note）
const (
	NoteInFlight           = "in_flight"
	NoteNoAction           = "no_action"
	NoteVenueUnhealthy     = "venue_unhealthy"
	NoteMissingCredentials = "missing_credentials"
	NoteNoOpenPosition     = "no_open_position"
	NotePositionClosing    = "position_closing"
	NoteInvalidSizing      = "invalid_sizing"
	NoteMarkClosingFailed  = "mark_closing_failed"

	// ExitPartialReason 出场补偿后仍有敞口时的强制平仓原因
	ExitPartialReason = "exit_partial"
)

// Gate 准入闸门
type Gate interface {
	Check(ctx context.Context, d domain.Decision) domain.RiskDecision
}

// LegObserver 单腿下单结果回报（交易所断路器）
type LegObserver interface {
	OnLegResult(venueID string, ok bool)
}

// PositionStore 执行器用到的持仓操作
type PositionStore interface {
	Get(ctx context.Context, symbolA string) *domain.Position
	Open(ctx context.Context, mapping domain.SymbolMapping, side domain.EntrySide, entry domain.SpreadSnapshot) (*domain.Position, error)
	MarkClosing(ctx context.Context, symbolA string) (*domain.Position, error)
	Reopen(ctx context.Context, symbolA string) (*domain.Position, error)
	Reduce(ctx context.Context, symbolA string, closedQty float64) (*domain.Position, error)
	Close(ctx context.Context, symbolA string, exit domain.SpreadSnapshot, reason string) (*domain.Position, error)
}

// Deps 执行器依赖；Gate / Health / FX / Metrics / LegObserver 可为空
type Deps struct {
	VenueA      ports.Venue
	VenueB      ports.Venue
	Positions   PositionStore
	Gate        Gate
	Health      ports.HealthProvider
	FX          ports.FXRateProvider
	Metrics     ports.MetricsRecorder
	LegObserver LegObserver
	Now         func() time.Time
}

// Executor 两腿执行器：PRECHECK -> SIZING -> DISPATCHED -> {SUCCESS, COMPENSATING}
type Executor struct {
	cfg      Config
	deps     Deps
	now      func() time.Time
	inFlight *InFlightGuard
	metrics  execMetrics
}

func NewExecutor(cfg Config, deps Deps) (*Executor, error) {
	if deps.VenueA == nil || deps.VenueB == nil {
		return nil, errors.New("execution: both venues are required")
	}
	if deps.Positions == nil {
		return nil, errors.New("execution: position store is required")
	}
	cfg = cfg.withDefaults()
	if cfg.VenueA == "" {
		cfg.VenueA = deps.VenueA.ID()
	}
	if cfg.VenueB == "" {
		cfg.VenueB = deps.VenueB.ID()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	g := NewInFlightGuard(cfg.InFlightTTL, 64)
	g.now = now
	return &Executor{cfg: cfg, deps: deps, now: now, inFlight: g}, nil
}

// Execute 执行一个决策。blocked 结果保证两所都没有下单。
func (e *Executor) Execute(ctx context.Context, d domain.Decision) (res domain.ExecutionResult) {
	start := e.now()
	res = domain.ExecutionResult{ID: uuid.NewString(), Decision: d}

	defer func() {
		if r := recover(); r != nil {
			res.Status = domain.ExecFailed
			res.Note = fmt.Sprintf("panic: %v", r)
			logger.WithField("symbol", d.SymbolA).Errorf("[execution] 执行 panic: %v", r)
		}
		res.CompletedAt = e.now()
		res.Latency = res.CompletedAt.Sub(start)
		e.metrics.observe(res)
		e.record(res)
	}()

	if d.Action == domain.ActionNoAction {
		return blocked(res, NoteNoAction)
	}

	if err := e.inFlight.TryAcquire(d.SymbolA); err != nil {
		return blocked(res, NoteInFlight)
	}
	defer e.inFlight.Release(d.SymbolA)

	// ---- PRECHECK ----
	if note, ok := e.precheck(); !ok {
		return blocked(res, note)
	}
	if e.deps.Gate != nil {
		rd := e.deps.Gate.Check(ctx, d)
		res.Risk = &rd
		if !rd.Allowed {
			return blocked(res, rd.ReasonCode)
		}
		if rd.ReducedNotional != nil {
			d = d.WithNotional(*rd.ReducedNotional)
			res.Decision = d
		}
	}

	exit := d.Action.IsExit()
	var pos *domain.Position
	current := e.deps.Positions.Get(ctx, d.SymbolA)
	switch {
	case exit && current == nil:
		return blocked(res, NoteNoOpenPosition)
	case exit && !current.IsOpen():
		return blocked(res, NoteNoOpenPosition+":"+string(current.State))
	case exit:
		pos = current
	case current != nil && current.State == domain.PositionStateClosing:
		return blocked(res, NotePositionClosing)
	}

	// ---- SIZING ----
	plan, err := e.plan(ctx, d, pos)
	if err != nil {
		res.Status = domain.ExecFailed
		res.Note = NoteInvalidSizing + ": " + err.Error()
		return res
	}

	if exit {
		if _, err := e.deps.Positions.MarkClosing(ctx, d.SymbolA); err != nil {
			res.Status = domain.ExecFailed
			res.Note = NoteMarkClosingFailed + ": " + err.Error()
			return res
		}
	}

	// ---- DISPATCHED ----
	symbolB := d.SymbolB
	if pos != nil && pos.Mapping.SymbolB != "" {
		symbolB = pos.Mapping.SymbolB
	}
	reqA := domain.OrderRequest{Symbol: d.SymbolA, Side: plan.sideA, Quantity: plan.quantity, Price: plan.priceA, Type: e.cfg.OrderType}
	reqB := domain.OrderRequest{Symbol: symbolB, Side: plan.sideB, Quantity: plan.quantity, Price: plan.priceB, Type: e.cfg.OrderType}

	log := logger.WithFields(logrus.Fields{
		"exec_id":  res.ID,
		"action":   d.Action,
		"symbol_a": d.SymbolA,
		"symbol_b": symbolB,
		"qty":      plan.quantity,
	})
	log.Infof("[execution] 下单 A=%s B=%s", plan.sideA, plan.sideB)

	legA, legB := e.placeBoth(ctx, reqA, reqB)
	if e.waitFills(ctx, &legA, &legB) {
		res.Status = domain.ExecSuccess
	} else {
		// ---- COMPENSATING ----
		res.Status, res.UnhedgedQty, res.Note = e.compensate(ctx, &legA, &legB)
		log.WithFields(logrus.Fields{
			"status":   res.Status,
			"filled_a": legA.FilledQty,
			"filled_b": legB.FilledQty,
		}).Warnf("[execution] 补偿完成: %s", res.Note)
	}
	res.LegA, res.LegB = legA, legB

	// 两腿都成交的部分是真实的对冲仓位，不论最终状态都要记进 SSOT
	if exit {
		e.settleExit(ctx, d, plan, &res)
	} else if hedgedQty(res) > e.cfg.Epsilon {
		e.settleEntry(ctx, d, plan, &res)
	}
	return res
}

func blocked(res domain.ExecutionResult, note string) domain.ExecutionResult {
	res.Status = domain.ExecBlocked
	res.Note = note
	return res
}

// precheck 两所可交易且凭证齐全
func (e *Executor) precheck() (string, bool) {
	for _, v := range []ports.Venue{e.deps.VenueA, e.deps.VenueB} {
		if e.deps.Health != nil {
			if st := e.deps.Health.GetStatus(v.ID()); !st.Tradeable() {
				return NoteVenueUnhealthy + ":" + v.ID(), false
			}
		}
		if !v.HasCredentials() {
			return NoteMissingCredentials + ":" + v.ID(), false
		}
	}
	return "", true
}

func (e *Executor) snapshot(d domain.Decision, plan legPlan, res domain.ExecutionResult, qty float64) domain.SpreadSnapshot {
	priceA, priceB := plan.priceA, plan.priceB
	if res.LegA.AvgPrice > 0 {
		priceA = res.LegA.AvgPrice
	}
	if res.LegB.AvgPrice > 0 {
		priceB = res.LegB.AvgPrice
	}
	return domain.SpreadSnapshot{
		SpreadPct: d.SpreadPct,
		FXRate:    plan.fxRate,
		PriceA:    priceA,
		PriceB:    priceB,
		Quantity:  qty,
		Notional:  qty * priceA,
		At:        e.now(),
	}
}

// hedgedQty 两腿共同成交的数量
func hedgedQty(res domain.ExecutionResult) float64 {
	return math.Min(res.LegA.FilledQty, res.LegB.FilledQty)
}

// settleEntry 按两腿共同成交量建仓；单边多出的部分是未对冲敞口，由告警处理
func (e *Executor) settleEntry(ctx context.Context, d domain.Decision, plan legPlan, res *domain.ExecutionResult) {
	qty := hedgedQty(*res)
	if _, err := e.deps.Positions.Open(ctx, d.Mapping(), d.Side(), e.snapshot(d, plan, *res, qty)); err != nil {
		// 两所已成交但 SSOT 没写进去：结果仍是 success，但必须可见
		res.Note = "position write failed: " + err.Error()
	}
}

// settleExit 出场结算：成功平仓；残余敞口强制平仓；
// 回滚时两腿共同成交的部分从仓位里扣掉，剩余数量恢复 OPEN 以便下次重试
func (e *Executor) settleExit(ctx context.Context, d domain.Decision, plan legPlan, res *domain.ExecutionResult) {
	var (
		closed *domain.Position
		err    error
	)
	switch res.Status {
	case domain.ExecSuccess:
		closed, err = e.deps.Positions.Close(ctx, d.SymbolA, e.snapshot(d, plan, *res, plan.quantity), string(d.Action))
	case domain.ExecPartialHedged:
		closed, err = e.deps.Positions.Close(ctx, d.SymbolA, e.snapshot(d, plan, *res, plan.quantity), ExitPartialReason)
	default:
		matched := hedgedQty(*res)
		switch {
		case matched <= e.cfg.Epsilon:
			_, err = e.deps.Positions.Reopen(ctx, d.SymbolA)
		case plan.quantity-matched <= e.cfg.Epsilon:
			closed, err = e.deps.Positions.Close(ctx, d.SymbolA, e.snapshot(d, plan, *res, matched), string(d.Action))
		default:
			_, err = e.deps.Positions.Reduce(ctx, d.SymbolA, matched)
			res.Note = joinNote(res.Note, "position reduced by "+strconv.FormatFloat(matched, 'f', -1, 64))
		}
	}
	if err != nil {
		res.Note = joinNote(res.Note, "position update failed: "+err.Error())
		return
	}
	if closed != nil && closed.RealizedPnL != nil {
		pnl := *closed.RealizedPnL
		res.RealizedPnL = &pnl
	}
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// record 指标回调（best-effort）
func (e *Executor) record(res domain.ExecutionResult) {
	if e.deps.Metrics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.SinkPanics.Add(1)
			logger.Warnf("[execution] 指标落点 panic: %v", r)
		}
	}()
	e.deps.Metrics.RecordExecutionResult(res)
}

// GetMetrics 执行器指标快照
func (e *Executor) GetMetrics() map[string]any {
	out := e.metrics.snapshot()
	out["in_flight"] = e.inFlight.Active()
	return out
}
