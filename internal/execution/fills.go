package execution

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
)

// placeLeg 下单；失败时返回 LegFailed 且 OrderID 为空
func (e *Executor) placeLeg(ctx context.Context, venue ports.Venue, req domain.OrderRequest) domain.LegExecutionResult {
	leg := domain.LegExecutionResult{
		VenueID:      venue.ID(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		RequestedQty: req.Quantity,
	}
	res, err := venue.PlaceOrder(ctx, req)
	if err != nil {
		leg.Status = domain.LegFailed
		leg.Error = err.Error()
		e.observeLeg(leg.VenueID, false)
		return leg
	}
	leg.OrderID = res.OrderID
	applyOrderResult(&leg, res)
	e.observeLeg(leg.VenueID, leg.Status != domain.LegFailed)
	return leg
}

// placeBoth 两腿并发下单（系统中唯一的非原子步骤）
func (e *Executor) placeBoth(ctx context.Context, reqA, reqB domain.OrderRequest) (domain.LegExecutionResult, domain.LegExecutionResult) {
	var legA, legB domain.LegExecutionResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		legA = e.placeLeg(ctx, e.deps.VenueA, reqA)
	}()
	go func() {
		defer wg.Done()
		legB = e.placeLeg(ctx, e.deps.VenueB, reqB)
	}()
	wg.Wait()
	return legA, legB
}

func applyOrderResult(leg *domain.LegExecutionResult, res domain.OrderResult) {
	leg.Status = domain.LegStatusFromOrder(res.Status)
	if res.FilledQty > leg.FilledQty {
		leg.FilledQty = res.FilledQty
	}
	if res.AvgPrice > 0 {
		leg.AvgPrice = res.AvgPrice
	}
}

func (e *Executor) observeLeg(venueID string, ok bool) {
	if e.deps.LegObserver == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[execution] leg observer panic: %v", r)
		}
	}()
	e.deps.LegObserver.OnLegResult(venueID, ok)
}

// settled 不会再有成交变化的腿（已成交、已撤、失败）
func settled(leg domain.LegExecutionResult) bool {
	return leg.Status == domain.LegFilled || leg.Status == domain.LegCanceled || leg.Status == domain.LegFailed
}

// waitFills 轮询两腿成交直到全部成交、任一腿终结未成交或超时。
// 返回 true 表示两腿均已成交。
func (e *Executor) waitFills(ctx context.Context, legA, legB *domain.LegExecutionResult) bool {
	bothFilled := func() bool {
		return legA.Status == domain.LegFilled && legB.Status == domain.LegFilled
	}
	if bothFilled() {
		return true
	}
	if legA.Status == domain.LegFailed || legB.Status == domain.LegFailed {
		return false
	}

	timer := time.NewTimer(e.cfg.FillTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			logger.WithFields(logrus.Fields{
				"symbol_a": legA.Symbol,
				"status_a": legA.Status,
				"status_b": legB.Status,
			}).Warnf("[execution] 等待成交超时 %s", e.cfg.FillTimeout)
			return false
		case <-ticker.C:
		}

		e.refreshLeg(ctx, e.deps.VenueA, legA)
		e.refreshLeg(ctx, e.deps.VenueB, legB)

		if bothFilled() {
			return true
		}
		// 任一腿已终结但未成交，无需继续等待
		if (settled(*legA) && legA.Status != domain.LegFilled) || (settled(*legB) && legB.Status != domain.LegFilled) {
			return false
		}
	}
}

// refreshLeg 查询一次订单状态；查询失败保持原状态
func (e *Executor) refreshLeg(ctx context.Context, venue ports.Venue, leg *domain.LegExecutionResult) {
	if leg.OrderID == "" || settled(*leg) {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, e.cfg.CancelTimeout)
	defer cancel()
	res, err := venue.GetOrderStatus(qctx, leg.Symbol, leg.OrderID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"venue":    leg.VenueID,
			"order_id": leg.OrderID,
		}).Warnf("[execution] 查询订单失败: %v", err)
		return
	}
	applyOrderResult(leg, res)
}
