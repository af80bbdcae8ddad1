package fx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Static 固定汇率（B 计价 -> A 计价），可在运行中更新
type Static struct {
	mu   sync.RWMutex
	rate decimal.Decimal
}

func NewStatic(rate decimal.Decimal) *Static {
	return &Static{rate: rate}
}

func (s *Static) Set(rate decimal.Decimal) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

func (s *Static) FXRate(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx: rate unavailable")
	}
	return s.rate, nil
}

// Table 货币换算表，键形如 "USDT/KRW"；反向汇率自动取倒数
type Table struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewTable(rates map[string]decimal.Decimal) *Table {
	t := &Table{rates: make(map[string]decimal.Decimal, len(rates))}
	for k, v := range rates {
		t.rates[strings.ToUpper(k)] = v
	}
	return t
}

func (t *Table) Set(from, to string, rate decimal.Decimal) {
	t.mu.Lock()
	t.rates[pairKey(from, to)] = rate
	t.mu.Unlock()
}

func (t *Table) Rate(from, to string) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rates[pairKey(from, to)]; ok && r.IsPositive() {
		return r, nil
	}
	if r, ok := t.rates[pairKey(to, from)]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, 16), nil
	}
	return decimal.Zero, fmt.Errorf("fx: no rate for %s/%s", from, to)
}

func pairKey(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}
