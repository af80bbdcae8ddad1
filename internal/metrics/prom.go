package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/betbot/spreadarb/internal/domain"
)

// Recorder Prometheus 指标落点（ports.MetricsRecorder 实现）。
// 使用独立 Registry，不污染全局默认注册表。
type Recorder struct {
	reg *prometheus.Registry

	riskDecisions *prometheus.CounterVec
	executions    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	unhedgedQty   *prometheus.CounterVec
	realizedPnL   prometheus.Gauge
	dailyPnL      prometheus.Gauge
	openPositions prometheus.Gauge
	imbalance     prometheus.Gauge
	exposureRisk  prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		riskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_risk_decisions_total",
			Help: "Admission gate decisions that were blocked or degraded",
		}, []string{"tier", "reason", "allowed"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_executions_total",
			Help: "Completed two-leg executions by status",
		}, []string{"status", "action"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arb_execution_latency_seconds",
			Help:    "Two-leg execution latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"status"}),
		unhedgedQty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_unhedged_quantity_total",
			Help: "Base quantity left unhedged after compensation",
		}, []string{"symbol"}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_realized_pnl_total",
			Help: "Cumulative realized PnL reported by executions (position quote units)",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_daily_pnl",
			Help: "Rolling UTC-day PnL in settlement currency",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_open_positions",
			Help: "Open positions in the position store",
		}),
		imbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_inventory_imbalance_ratio",
			Help: "(valueA - valueB) / (valueA + valueB)",
		}),
		exposureRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_inventory_exposure_risk",
			Help: "min(1, |imbalance| / exposure threshold)",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.riskDecisions,
		r.executions,
		r.latency,
		r.unhedgedQty,
		r.realizedPnL,
		r.dailyPnL,
		r.openPositions,
		r.imbalance,
		r.exposureRisk,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) RecordRiskDecision(_ domain.Decision, rd domain.RiskDecision, _ map[string]string) {
	r.riskDecisions.WithLabelValues(string(rd.Tier), rd.ReasonCode, strconv.FormatBool(rd.Allowed)).Inc()
}

func (r *Recorder) RecordExecutionResult(res domain.ExecutionResult) {
	status := string(res.Status)
	r.executions.WithLabelValues(status, string(res.Decision.Action)).Inc()
	if res.Status != domain.ExecBlocked {
		r.latency.WithLabelValues(status).Observe(res.Latency.Seconds())
	}
	if res.UnhedgedQty > 0 {
		r.unhedgedQty.WithLabelValues(res.Decision.SymbolA).Add(res.UnhedgedQty)
	}
	if res.RealizedPnL != nil {
		r.realizedPnL.Add(*res.RealizedPnL)
	}
}

// SetPortfolio 编排器每个 tick 结束时刷新的状态量
func (r *Recorder) SetPortfolio(dailyPnL float64, openPositions int, imbalance, exposureRisk float64) {
	r.dailyPnL.Set(dailyPnL)
	r.openPositions.Set(float64(openPositions))
	r.imbalance.Set(imbalance)
	r.exposureRisk.Set(exposureRisk)
}
