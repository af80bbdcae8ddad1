package risk

import (
	"sync"

	"github.com/betbot/spreadarb/internal/domain"
)

// GateMetrics 闸门自有的计数状态（不使用包级全局变量）
type GateMetrics struct {
	mu             sync.Mutex
	checksTotal    int64
	allowedTotal   int64
	degradedTotal  int64
	blockedTotal   int64
	blocksByTier   map[domain.RiskTier]int64
	blocksByReason map[string]int64
}

func newGateMetrics() *GateMetrics {
	return &GateMetrics{
		blocksByTier:   make(map[domain.RiskTier]int64),
		blocksByReason: make(map[string]int64),
	}
}

func (m *GateMetrics) observe(rd domain.RiskDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checksTotal++
	switch {
	case !rd.Allowed:
		m.blockedTotal++
		m.blocksByTier[rd.Tier]++
		m.blocksByReason[rd.ReasonCode]++
	case rd.Degraded():
		m.allowedTotal++
		m.degradedTotal++
	default:
		m.allowedTotal++
	}
}

// Snapshot 计数快照（map 均为副本）
func (m *GateMetrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTier := make(map[string]int64, len(m.blocksByTier))
	for k, v := range m.blocksByTier {
		byTier[string(k)] = v
	}
	byReason := make(map[string]int64, len(m.blocksByReason))
	for k, v := range m.blocksByReason {
		byReason[k] = v
	}
	return map[string]any{
		"checks_total":     m.checksTotal,
		"allowed_total":    m.allowedTotal,
		"degraded_total":   m.degradedTotal,
		"blocked_total":    m.blockedTotal,
		"blocks_by_tier":   byTier,
		"blocks_by_reason": byReason,
	}
}
