// Package signals 决策来源。策略本身在进程外，这里只提供排队与回放。
package signals

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/spreadarb/internal/domain"
)

// Queue 线程安全的决策队列，实现 ports.SignalSource。
// 入场决策在下一次入场 tick 全部取出；出场决策只在对应仓位 OPEN 时取出，否则继续等待。
type Queue struct {
	mu      sync.Mutex
	entries []domain.Decision
	exits   []domain.Decision
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push 按动作类型入队；no_action 丢弃
func (q *Queue) Push(ds ...domain.Decision) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range ds {
		switch {
		case d.Action.IsEntry():
			q.entries = append(q.entries, d)
		case d.Action.IsExit():
			q.exits = append(q.exits, d)
		}
	}
}

// Pending 尚未取出的入场/出场决策数
func (q *Queue) Pending() (entries, exits int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), len(q.exits)
}

func (q *Queue) EntryDecisions(context.Context) ([]domain.Decision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out, nil
}

func (q *Queue) ExitDecisions(_ context.Context, open []*domain.Position) ([]domain.Decision, error) {
	openSet := make(map[string]struct{}, len(open))
	for _, p := range open {
		openSet[p.Mapping.SymbolA] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	var out, keep []domain.Decision
	for _, d := range q.exits {
		if _, ok := openSet[d.SymbolA]; ok {
			out = append(out, d)
		} else {
			keep = append(keep, d)
		}
	}
	q.exits = keep
	return out, nil
}

// fileDecision 回放文件中的一条决策
type fileDecision struct {
	Action    string  `yaml:"action"`
	SymbolA   string  `yaml:"symbol_a"`
	SymbolB   string  `yaml:"symbol_b"`
	Notional  float64 `yaml:"notional"`
	SpreadPct float64 `yaml:"spread_pct"`
	PriceA    float64 `yaml:"price_a"`
	PriceB    float64 `yaml:"price_b"`
	FXRate    float64 `yaml:"fx_rate"`
	Side      string  `yaml:"side"`
	Reason    string  `yaml:"reason"`
}

// LoadFile 从 YAML 回放文件读取决策列表
func LoadFile(path string) ([]domain.Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取决策文件失败: %w", err)
	}
	var raw []fileDecision
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析决策文件失败: %w", err)
	}

	now := time.Now()
	out := make([]domain.Decision, 0, len(raw))
	for i, r := range raw {
		a := domain.Action(r.Action)
		if !a.IsEntry() && !a.IsExit() && a != domain.ActionNoAction {
			return nil, fmt.Errorf("决策 #%d: 未知动作 %q", i, r.Action)
		}
		if r.SymbolA == "" {
			return nil, fmt.Errorf("决策 #%d: symbol_a 为空", i)
		}
		out = append(out, domain.Decision{
			Action:    a,
			SymbolA:   r.SymbolA,
			SymbolB:   r.SymbolB,
			Notional:  r.Notional,
			SpreadPct: r.SpreadPct,
			PriceA:    r.PriceA,
			PriceB:    r.PriceB,
			FXRate:    r.FXRate,
			EntrySide: domain.EntrySide(r.Side),
			Reason:    r.Reason,
			Timestamp: now,
		})
	}
	return out, nil
}
