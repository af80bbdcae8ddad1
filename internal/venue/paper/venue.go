// Package paper 纸面交易所：本地撮合、可配置成交模式，用于 dry-run 与测试。
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/pkg/logger"
)

// FillMode 成交模式
type FillMode string

const (
	FillFull    FillMode = "full"    // 下单即全部成交
	FillNone    FillMode = "none"    // 挂单不成交
	FillPartial FillMode = "partial" // 下单即按 PartialRatio 部分成交
	FillReject  FillMode = "reject"  // 交易所拒单
	FillOnPoll  FillMode = "on_poll" // 第一次查单时全部成交
)

// ParseFillMode 未知值返回错误
func ParseFillMode(s string) (FillMode, error) {
	switch m := FillMode(s); m {
	case FillFull, FillNone, FillPartial, FillReject, FillOnPoll:
		return m, nil
	case "":
		return FillFull, nil
	}
	return "", fmt.Errorf("unknown fill mode %q", s)
}

// Config 纸面交易所配置
type Config struct {
	ID           string
	FillMode     FillMode
	PartialRatio float64 // partial 模式的成交比例 (0,1)，默认 0.5
	Credentials  bool
	BaseBalance  float64
	QuoteBalance float64
}

type order struct {
	req    domain.OrderRequest
	result domain.OrderResult
}

// Venue 实现 ports.Venue 与 ports.BalanceFetcher
type Venue struct {
	mu       sync.Mutex
	cfg      Config
	seq      int
	orders   map[string]*order
	base     float64
	quote    float64
	placeErr error
	cancels  []string
	placed   []domain.OrderRequest
}

func New(cfg Config) *Venue {
	if cfg.FillMode == "" {
		cfg.FillMode = FillFull
	}
	if cfg.PartialRatio <= 0 || cfg.PartialRatio >= 1 {
		cfg.PartialRatio = 0.5
	}
	return &Venue{
		cfg:    cfg,
		orders: make(map[string]*order),
		base:   cfg.BaseBalance,
		quote:  cfg.QuoteBalance,
	}
}

func (v *Venue) ID() string { return v.cfg.ID }

func (v *Venue) HasCredentials() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg.Credentials
}

func (v *Venue) SetCredentials(ok bool) {
	v.mu.Lock()
	v.cfg.Credentials = ok
	v.mu.Unlock()
}

// SetFillMode 切换后续订单的成交模式
func (v *Venue) SetFillMode(m FillMode) {
	v.mu.Lock()
	v.cfg.FillMode = m
	v.mu.Unlock()
}

// SetPlaceError 模拟网络/鉴权错误；nil 恢复正常
func (v *Venue) SetPlaceError(err error) {
	v.mu.Lock()
	v.placeErr = err
	v.mu.Unlock()
}

func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper %s: invalid quantity %v", v.cfg.ID, req.Quantity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.placeErr != nil {
		return domain.OrderResult{}, v.placeErr
	}

	v.seq++
	id := fmt.Sprintf("%s-%d", v.cfg.ID, v.seq)
	o := &order{req: req, result: domain.OrderResult{OrderID: id, Status: domain.OrderStatusOpen}}
	v.orders[id] = o
	v.placed = append(v.placed, req)

	switch v.cfg.FillMode {
	case FillFull:
		v.fill(o, req.Quantity)
	case FillPartial:
		v.fill(o, req.Quantity*v.cfg.PartialRatio)
	case FillReject:
		o.result.Status = domain.OrderStatusRejected
	}

	logger.Debugf("[paper] %s %s %s qty=%v status=%s", v.cfg.ID, req.Side, req.Symbol, req.Quantity, o.result.Status)
	return o.result, nil
}

// fill 调用方持有锁
func (v *Venue) fill(o *order, qty float64) {
	if qty <= 0 {
		return
	}
	o.result.FilledQty += qty
	o.result.AvgPrice = o.req.Price
	if o.result.FilledQty >= o.req.Quantity {
		o.result.FilledQty = o.req.Quantity
		o.result.Status = domain.OrderStatusFilled
	} else {
		o.result.Status = domain.OrderStatusPartiallyFilled
	}

	cost := qty * o.req.Price
	if o.req.Side == domain.SideBuy {
		v.base += qty
		v.quote -= cost
	} else {
		v.base -= qty
		v.quote += cost
	}
}

func (v *Venue) CancelOrder(_ context.Context, _ string, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancels = append(v.cancels, orderID)
	o, ok := v.orders[orderID]
	if !ok {
		return false, fmt.Errorf("paper %s: order %s not found", v.cfg.ID, orderID)
	}
	if o.result.Status.IsFinal() {
		return false, nil
	}
	o.result.Status = domain.OrderStatusCanceled
	return true, nil
}

func (v *Venue) GetOrderStatus(_ context.Context, _ string, orderID string) (domain.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("paper %s: order %s not found", v.cfg.ID, orderID)
	}
	if v.cfg.FillMode == FillOnPoll && !o.result.Status.IsFinal() {
		v.fill(o, o.req.Quantity-o.result.FilledQty)
	}
	return o.result, nil
}

// GetBalances 基础资产与计价货币余额（纸面账户不区分 symbol）
func (v *Venue) GetBalances(context.Context, string) (float64, float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.base, v.quote, nil
}

// Cancels 收到过撤单请求的订单
func (v *Venue) Cancels() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.cancels...)
}

// Placed 已受理的下单请求
func (v *Venue) Placed() []domain.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.OrderRequest(nil), v.placed...)
}
