package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	mu    sync.Mutex
	count map[string]int
}

func (c *countingSender) SendAlert(_ context.Context, severity, title, _ string, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = make(map[string]int)
	}
	c.count[severity+"|"+title]++
	return nil
}

func TestThrottledSuppressesRepeatedWarnings(t *testing.T) {
	inner := &countingSender{}
	th := NewThrottled(inner, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	th.limiter.SetClock(func() time.Time { return now })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.SendAlert(ctx, SeverityWarning, "route_low_score", "x", nil))
		require.NoError(t, th.SendAlert(ctx, SeverityCritical, "partial hedge", "x", nil))
	}
	require.NoError(t, th.SendAlert(ctx, SeverityWarning, "other", "x", nil))

	assert.Equal(t, 2, inner.count["warning|route_low_score"])
	assert.Equal(t, 5, inner.count["critical|partial hedge"], "critical 不限流")
	assert.Equal(t, 1, inner.count["warning|other"])

	// 窗口滑过之后恢复
	now = now.Add(61 * time.Second)
	require.NoError(t, th.SendAlert(ctx, SeverityWarning, "route_low_score", "x", nil))
	assert.Equal(t, 3, inner.count["warning|route_low_score"])
}
