package alert

import (
	"context"
	"time"

	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/pkg/logger"
	"github.com/betbot/spreadarb/pkg/ratelimit"
)

// Throttled 按 severity+title 限流的告警通道。critical 不限流。
type Throttled struct {
	next    ports.AlertSender
	limiter *ratelimit.Keyed
}

// NewThrottled 每个 severity+title 在 window 内最多转发 limit 条
func NewThrottled(next ports.AlertSender, limit int, window time.Duration) *Throttled {
	return &Throttled{next: next, limiter: ratelimit.NewKeyed(limit, window)}
}

func (t *Throttled) SendAlert(ctx context.Context, severity, title, message string, metadata map[string]string) error {
	if severity != SeverityCritical && !t.limiter.Allow(severity+"|"+title) {
		metrics.AlertsSuppressed.Add(1)
		logger.Debugf("[alert] 限流丢弃 severity=%s title=%s", severity, title)
		return nil
	}
	return t.next.SendAlert(ctx, severity, title, message, metadata)
}
