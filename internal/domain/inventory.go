package domain

import "time"

// Inventory 单个交易所的余额快照（整体替换，不做局部修改）
type Inventory struct {
	VenueID      string
	BaseBalance  float64
	QuoteBalance float64
	Timestamp    time.Time
}

// Value 以 price 计价的总价值：base*price + quote
func (i Inventory) Value(price float64) float64 {
	return i.BaseBalance*price + i.QuoteBalance
}

// RebalanceAction 再平衡建议动作
type RebalanceAction string

const (
	RebalanceNone    RebalanceAction = "none"
	RebalanceReduceA RebalanceAction = "reduce_a" // A 所超配，减少 A 所基础资产
	RebalanceReduceB RebalanceAction = "reduce_b" // B 所超配，减少 B 所基础资产
)

// RebalanceSignal 再平衡信号（派生量，不持久化）
type RebalanceSignal struct {
	Needed         bool
	ImbalanceRatio float64 // [-1, 1]，正数表示 A 所超配
	ExposureRisk   float64 // [0, 1]
	Action         RebalanceAction
}

// VenueStatus 交易所健康状态
type VenueStatus string

const (
	VenueHealthy  VenueStatus = "healthy"
	VenueDegraded VenueStatus = "degraded"
	VenueDown     VenueStatus = "down"
	VenueFrozen   VenueStatus = "frozen"
)

// Tradeable healthy / degraded 可交易，down / frozen 不可交易
func (s VenueStatus) Tradeable() bool {
	return s == VenueHealthy || s == VenueDegraded
}
