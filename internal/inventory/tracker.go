package inventory

import (
	"math"
	"sync"

	"github.com/betbot/spreadarb/internal/domain"
)

// Config 库存阈值
type Config struct {
	// ImbalanceThreshold |imbalance| 超过该值需要再平衡（默认 0.3）
	ImbalanceThreshold float64
	// ExposureThreshold 暴露风险的归一化分母（默认 0.5）
	ExposureThreshold float64
}

func (c Config) withDefaults() Config {
	if c.ImbalanceThreshold <= 0 {
		c.ImbalanceThreshold = 0.3
	}
	if c.ExposureThreshold <= 0 {
		c.ExposureThreshold = 0.5
	}
	return c
}

// Tracker 维护两所余额快照，派生失衡比与暴露风险。
// 单写多读：编排器在每次执行后写入，风控闸门读取（允许轻微过期）。
type Tracker struct {
	cfg Config

	mu sync.RWMutex
	a  domain.Inventory
	b  domain.Inventory
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

// UpdateInventory 整体替换两所快照
func (t *Tracker) UpdateInventory(a, b domain.Inventory) {
	t.mu.Lock()
	t.a = a
	t.b = b
	t.mu.Unlock()
}

// Snapshot 返回当前两所快照
func (t *Tracker) Snapshot() (domain.Inventory, domain.Inventory) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.a, t.b
}

// ImbalanceRatio (valueA - valueB) / (valueA + valueB)，价格须为同一计价单位。
// 两边价值都为 0（无定义）时返回 0。
func (t *Tracker) ImbalanceRatio(priceA, priceB float64) float64 {
	t.mu.RLock()
	va := t.a.Value(priceA)
	vb := t.b.Value(priceB)
	t.mu.RUnlock()

	total := va + vb
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	r := (va - vb) / total
	return math.Max(-1, math.Min(1, r))
}

// ExposureRisk min(1, |imbalance| / exposureThreshold)
func (t *Tracker) ExposureRisk(priceA, priceB float64) float64 {
	imb := math.Abs(t.ImbalanceRatio(priceA, priceB))
	return math.Min(1, imb/t.cfg.ExposureThreshold)
}

// CheckRebalance 判断是否需要再平衡，并给出减仓方向
func (t *Tracker) CheckRebalance(priceA, priceB float64) domain.RebalanceSignal {
	imb := t.ImbalanceRatio(priceA, priceB)
	sig := domain.RebalanceSignal{
		ImbalanceRatio: imb,
		ExposureRisk:   t.ExposureRisk(priceA, priceB),
		Action:         domain.RebalanceNone,
	}
	if math.Abs(imb) > t.cfg.ImbalanceThreshold {
		sig.Needed = true
		if imb > 0 {
			sig.Action = domain.RebalanceReduceA
		} else {
			sig.Action = domain.RebalanceReduceB
		}
	}
	return sig
}
