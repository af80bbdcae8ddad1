package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/spreadarb/internal/domain"
)

func result(id string, status domain.ExecutionStatus, at time.Time) domain.ExecutionResult {
	return domain.ExecutionResult{
		ID: id,
		Decision: domain.Decision{
			Action:    domain.ActionEntryLongSpread,
			SymbolA:   "BTC-KRW",
			SymbolB:   "BTCUSDT",
			Notional:  1_000_000,
			SpreadPct: 1.1,
		},
		LegA:        domain.LegExecutionResult{VenueID: "upbit", Symbol: "BTC-KRW", Side: domain.SideSell, OrderID: "a-1", Status: domain.LegFilled, FilledQty: 0.01},
		LegB:        domain.LegExecutionResult{VenueID: "binance", Symbol: "BTCUSDT", Side: domain.SideBuy, OrderID: "b-1", Status: domain.LegCanceled, Canceled: true},
		Status:      status,
		Latency:     1500 * time.Millisecond,
		UnhedgedQty: 0.01,
		Note:        "unhedged exposure 0.01 BTC-KRW",
		CompletedAt: at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := result("e1", domain.ExecPartialHedged, t0)
	require.NoError(t, j.Record(ctx, first))

	second := result("e2", domain.ExecSuccess, t0.Add(time.Minute))
	pnl := 1234.5
	second.RealizedPnL = &pnl
	second.Risk = &domain.RiskDecision{Allowed: true, Tier: domain.TierSymbol, ReasonCode: domain.ReasonSymbolExposureDegraded}
	require.NoError(t, j.Record(ctx, second))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e2", entries[0].ID)
	require.NotNil(t, entries[0].RealizedPnL)
	assert.Equal(t, 1234.5, *entries[0].RealizedPnL)
	assert.Equal(t, string(domain.TierSymbol), entries[0].RiskTier)
	assert.Equal(t, int64(1500), entries[0].LatencyMs)

	assert.Equal(t, "e1", entries[1].ID)
	assert.Nil(t, entries[1].RealizedPnL)
	assert.Equal(t, string(domain.ExecPartialHedged), entries[1].Status)
	require.Len(t, entries[1].Legs, 2)
	assert.True(t, entries[1].Legs[1].Canceled)
	assert.True(t, t0.Equal(entries[1].CompletedAt))

	counts, err := j.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[string(domain.ExecSuccess)])

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordIsIdempotentPerID(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, j.Record(ctx, result("same", domain.ExecRolledBack, at)))
	require.NoError(t, j.Record(ctx, result("same", domain.ExecRolledBack, at)))

	entries, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
