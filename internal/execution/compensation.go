package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
)

// compensate 撤掉所有未终结的腿，再按两腿成交量差分类。
// 不做自动的第三笔对冲单：残余敞口交给上层（告警/人工）处理。
func (e *Executor) compensate(ctx context.Context, legA, legB *domain.LegExecutionResult) (domain.ExecutionStatus, float64, string) {
	// 上游 ctx 已取消时撤单仍要发出去
	cctx := context.WithoutCancel(ctx)
	e.cancelLeg(cctx, e.deps.VenueA, legA)
	e.cancelLeg(cctx, e.deps.VenueB, legB)

	delta := math.Abs(legA.FilledQty - legB.FilledQty)
	if delta > e.cfg.Epsilon {
		note := fmt.Sprintf("unhedged exposure %s %s (a=%s %s, b=%s %s)",
			strconv.FormatFloat(delta, 'f', -1, 64),
			legA.Symbol,
			strconv.FormatFloat(legA.FilledQty, 'f', -1, 64), legA.Status,
			strconv.FormatFloat(legB.FilledQty, 'f', -1, 64), legB.Status,
		)
		return domain.ExecPartialHedged, delta, note
	}

	note := "rolled back, no net exposure"
	if matched := math.Min(legA.FilledQty, legB.FilledQty); matched > e.cfg.Epsilon {
		// 两腿成交量一致：净敞口为零，但两所各有一笔对冲后的残量
		note = fmt.Sprintf("rolled back with hedged residual %s", strconv.FormatFloat(matched, 'f', -1, 64))
	}
	return domain.ExecRolledBack, delta, note
}

// cancelLeg accepted / partially_filled 的腿一律撤单，然后回查最终成交量
func (e *Executor) cancelLeg(ctx context.Context, venue ports.Venue, leg *domain.LegExecutionResult) {
	if leg.OrderID == "" || !leg.Status.NeedsCancel() {
		return
	}

	fields := logrus.Fields{
		"venue":    leg.VenueID,
		"symbol":   leg.Symbol,
		"order_id": leg.OrderID,
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CancelTimeout)
	ok, err := venue.CancelOrder(cctx, leg.Symbol, leg.OrderID)
	cancel()
	leg.Canceled = true
	e.metrics.cancels.Add(1)
	if err != nil || !ok {
		e.metrics.cancelFailures.Add(1)
		logger.WithFields(fields).Errorf("[execution] 撤单失败 ok=%v err=%v", ok, err)
	}

	qctx, qcancel := context.WithTimeout(ctx, e.cfg.CancelTimeout)
	res, qerr := venue.GetOrderStatus(qctx, leg.Symbol, leg.OrderID)
	qcancel()
	if qerr == nil {
		applyOrderResult(leg, res)
	} else {
		logger.WithFields(fields).Warnf("[execution] 撤单后回查失败: %v", qerr)
	}

	// 撤单已确认但回查仍显示挂单（回报延迟），按已撤处理
	if ok && err == nil && leg.Status.NeedsCancel() {
		leg.Status = domain.LegCanceled
	}
}
