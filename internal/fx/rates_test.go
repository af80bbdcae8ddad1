package fx

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInverse(t *testing.T) {
	tb := NewTable(map[string]decimal.Decimal{"usdt/krw": decimal.NewFromInt(1000)})

	r, err := tb.Rate("USDT", "KRW")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1000)))

	r, err = tb.Rate("KRW", "USDT")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.001")), r.String())

	r, err = tb.Rate("krw", "KRW")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))

	_, err = tb.Rate("EUR", "KRW")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := NewStatic(decimal.Zero)
	_, err := s.FXRate(context.Background())
	assert.Error(t, err)

	s.Set(decimal.NewFromInt(1350))
	r, err := s.FXRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1350", r.String())
}
