package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/spreadarb/internal/domain"
)

// HealthProvider 交易所健康状态（采集逻辑在外部）
type HealthProvider interface {
	GetStatus(venueID string) domain.VenueStatus
}

// FXRateProvider B 所计价货币 -> A 所计价货币的汇率
type FXRateProvider interface {
	FXRate(ctx context.Context) (decimal.Decimal, error)
}

// RateProvider 任意货币之间的换算
type RateProvider interface {
	Rate(from, to string) (decimal.Decimal, error)
}

// SignalSource 外部策略：产出入场/出场决策
type SignalSource interface {
	EntryDecisions(ctx context.Context) ([]domain.Decision, error)
	ExitDecisions(ctx context.Context, open []*domain.Position) ([]domain.Decision, error)
}

// MetricsRecorder best-effort 指标落点，失败不能影响交易路径
type MetricsRecorder interface {
	RecordRiskDecision(d domain.Decision, rd domain.RiskDecision, meta map[string]string)
	RecordExecutionResult(r domain.ExecutionResult)
}

// AlertSender best-effort 告警通道
type AlertSender interface {
	SendAlert(ctx context.Context, severity, title, message string, metadata map[string]string) error
}

// Clock 便于测试注入时间
type Clock func() time.Time
