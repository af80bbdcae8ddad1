package domain

import (
	"time"
)

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus 交易所端口返回的订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsFinal 最终状态不会再变化
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusRejected
}

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Quantity float64
	Price    float64
	Type     OrderType
}

// OrderResult 交易所端口的订单回报
type OrderResult struct {
	OrderID   string
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
}

// LegStatus 单腿执行状态
type LegStatus string

const (
	LegAccepted        LegStatus = "accepted"
	LegPartiallyFilled LegStatus = "partially_filled"
	LegFilled          LegStatus = "filled"
	LegCanceled        LegStatus = "canceled"
	LegFailed          LegStatus = "failed"
)

// LegStatusFromOrder 端口订单状态 -> 单腿状态
func LegStatusFromOrder(s OrderStatus) LegStatus {
	switch s {
	case OrderStatusFilled:
		return LegFilled
	case OrderStatusPartiallyFilled:
		return LegPartiallyFilled
	case OrderStatusCanceled:
		return LegCanceled
	case OrderStatusRejected:
		return LegFailed
	default:
		return LegAccepted
	}
}

// NeedsCancel 补偿阶段需要撤单的状态
func (s LegStatus) NeedsCancel() bool {
	return s == LegAccepted || s == LegPartiallyFilled
}

// LegExecutionResult 单个交易所单腿的执行结果
type LegExecutionResult struct {
	VenueID      string    `json:"venue_id"`
	Symbol       string    `json:"symbol"`
	Side         OrderSide `json:"side"`
	OrderID      string    `json:"order_id,omitempty"` // 下单失败时为空
	Status       LegStatus `json:"status"`
	FilledQty    float64   `json:"filled_qty"`
	RequestedQty float64   `json:"requested_qty"`
	AvgPrice     float64   `json:"avg_price"`
	Error        string    `json:"error,omitempty"`
	Canceled     bool      `json:"canceled"` // 补偿阶段是否发出过撤单
}

// ExecutionStatus 两腿执行的汇总状态
type ExecutionStatus string

const (
	ExecSuccess       ExecutionStatus = "success"
	ExecPartialHedged ExecutionStatus = "partial_hedged"
	ExecRolledBack    ExecutionStatus = "rolled_back"
	ExecFailed        ExecutionStatus = "failed"
	ExecBlocked       ExecutionStatus = "blocked"
)

// ExecutionResult 一次决策的执行结果
type ExecutionResult struct {
	ID          string
	Decision    Decision
	LegA        LegExecutionResult
	LegB        LegExecutionResult
	Status      ExecutionStatus
	RealizedPnL *float64
	Note        string
	Latency     time.Duration
	Risk        *RiskDecision
	UnhedgedQty float64 // 两腿成交量差（基础资产数量）
	CompletedAt time.Time
}

// OrdersPlaced 本次执行实际发出的订单数
func (r ExecutionResult) OrdersPlaced() int {
	n := 0
	if r.LegA.OrderID != "" {
		n++
	}
	if r.LegB.OrderID != "" {
		n++
	}
	return n
}
