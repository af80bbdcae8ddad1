package execution

import (
	"sync/atomic"

	"github.com/betbot/spreadarb/internal/domain"
)

// execMetrics 执行器计数（实例自有）
type execMetrics struct {
	total          atomic.Int64
	success        atomic.Int64
	failed         atomic.Int64
	partialHedged  atomic.Int64
	rolledBack     atomic.Int64
	blocked        atomic.Int64
	cancels        atomic.Int64
	cancelFailures atomic.Int64
	latencyNanos   atomic.Int64
}

func (m *execMetrics) observe(r domain.ExecutionResult) {
	m.total.Add(1)
	m.latencyNanos.Add(int64(r.Latency))
	switch r.Status {
	case domain.ExecSuccess:
		m.success.Add(1)
	case domain.ExecFailed:
		m.failed.Add(1)
	case domain.ExecPartialHedged:
		m.partialHedged.Add(1)
	case domain.ExecRolledBack:
		m.rolledBack.Add(1)
	case domain.ExecBlocked:
		m.blocked.Add(1)
	}
}

func (m *execMetrics) snapshot() map[string]any {
	total := m.total.Load()
	avgMs := 0.0
	if total > 0 {
		avgMs = float64(m.latencyNanos.Load()) / float64(total) / 1e6
	}
	return map[string]any{
		"total":           total,
		"success":         m.success.Load(),
		"failed":          m.failed.Load(),
		"partial_hedged":  m.partialHedged.Load(),
		"rolled_back":     m.rolledBack.Load(),
		"blocked":         m.blocked.Load(),
		"cancels":         m.cancels.Load(),
		"cancel_failures": m.cancelFailures.Load(),
		"avg_latency_ms":  avgMs,
	}
}
