package alert

import (
	"context"
	"time"

	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
)

// 告警级别
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Nop 丢弃所有告警
type Nop struct{}

func (Nop) SendAlert(context.Context, string, string, string, map[string]string) error { return nil }

// Dispatch fire-and-forget 发送告警：独立 goroutine、独立超时、recover 兜底。
// 告警失败只记日志，绝不影响交易路径。
func Dispatch(sender ports.AlertSender, severity, title, message string, metadata map[string]string) {
	if sender == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.SinkPanics.Add(1)
				logger.Errorf("[alert] sender panic: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sender.SendAlert(ctx, severity, title, message, metadata); err != nil {
			logger.Warnf("[alert] 发送失败 severity=%s title=%s: %v", severity, title, err)
		}
	}()
}
