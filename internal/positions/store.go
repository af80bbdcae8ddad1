package positions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/pkg/kvstore"
	"github.com/betbot/spreadarb/pkg/logger"
)

const (
	DefaultKeyPrefix    = "position:"
	DefaultTTL          = 7 * 24 * time.Hour
	DefaultNotionalBase = 1_000_000

	// ReasonForcedReplacement 同一 symbol 重复开仓时旧仓位的平仓原因
	ReasonForcedReplacement = "forced_replacement"
)

// ErrPositionClosing 出场单在途的仓位不能被新开仓覆盖
var ErrPositionClosing = errors.New("positions: position is closing")

// Config 仓位存储配置
type Config struct {
	KeyPrefix string
	// TTL 记录过期时间（兜底清理，不承担正确性）
	TTL time.Duration
	// NotionalBase 简化盈亏公式中的固定名义基数
	NotionalBase float64
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.NotionalBase <= 0 {
		c.NotionalBase = DefaultNotionalBase
	}
	return c
}

// Inventory 持仓数量统计
type Inventory struct {
	Total  int                      `json:"total"`
	BySide map[domain.EntrySide]int `json:"by_side"`
}

// Store 仓位唯一事实来源（SSOT）。
//
// 生命周期只允许 OPEN -> CLOSING -> CLOSED（以及出场回滚时 CLOSING -> OPEN），
// 任何记录都不会从 CLOSED 回到 OPEN/CLOSING。
// 读失败降级为空结果；写失败必须大声记录，因为这意味着 SSOT 已与真实持仓偏离。
type Store struct {
	kv    kvstore.Store
	cfg   Config
	locks *keyLocks
	now   func() time.Time
	log   *logrus.Entry
}

// Option 可选项
type Option func(*Store)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(kv kvstore.Store, cfg Config, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		cfg:   cfg.withDefaults(),
		locks: newKeyLocks(64),
		now:   time.Now,
		log:   logger.WithField("component", "positions"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) key(symbolA string) string {
	return s.cfg.KeyPrefix + symbolA
}

// NotionalBase 盈亏公式基数
func (s *Store) NotionalBase() float64 {
	return s.cfg.NotionalBase
}

// Open 开仓。若该 symbol 已有 OPEN 仓位，先强制平掉（记为 forced_replacement）再新建；
// CLOSING 仓位的出场单仍在途，返回 ErrPositionClosing，不覆盖。
func (s *Store) Open(ctx context.Context, mapping domain.SymbolMapping, side domain.EntrySide, entry domain.SpreadSnapshot) (*domain.Position, error) {
	if mapping.SymbolA == "" {
		return nil, fmt.Errorf("positions: empty symbol")
	}
	if !side.Valid() {
		return nil, fmt.Errorf("positions: invalid entry side %q", side)
	}
	unlock := s.locks.lock(mapping.SymbolA)
	defer unlock()

	existing, err := s.load(ctx, mapping.SymbolA)
	if err != nil {
		// 读不到旧记录时不阻断开仓：新记录会覆盖同一个 key
		s.log.WithError(err).WithField("symbol", mapping.SymbolA).Warn("[positions] 开仓前读取旧仓位失败")
	}
	if existing != nil && existing.State == domain.PositionStateClosing {
		s.log.WithFields(logrus.Fields{
			"symbol": mapping.SymbolA,
			"old_id": existing.ID,
		}).Warn("[positions] 仓位出场中，拒绝开仓")
		return existing, ErrPositionClosing
	}
	if existing.IsOpen() {
		s.log.WithFields(logrus.Fields{
			"symbol":     mapping.SymbolA,
			"old_id":     existing.ID,
			"old_side":   existing.EntrySide,
			"new_side":   side,
			"entry_time": existing.EntryTime,
		}).Warn("[positions] 同一 symbol 已有 OPEN 仓位，强制替换")
		metrics.ForcedReplacements.Add(1)
		s.closeLocked(ctx, existing, entry, ReasonForcedReplacement)
	}

	at := entry.At
	if at.IsZero() {
		at = s.now()
	}
	p := &domain.Position{
		ID:             uuid.NewString(),
		Mapping:        mapping,
		EntrySide:      side,
		State:          domain.PositionStateOpen,
		EntrySpreadPct: entry.SpreadPct,
		EntryFXRate:    entry.FXRate,
		EntryPriceA:    entry.PriceA,
		EntryPriceB:    entry.PriceB,
		Quantity:       entry.Quantity,
		Notional:       entry.Notional,
		EntryTime:      at,
	}
	if err := s.save(ctx, p, "open"); err != nil {
		return p, err
	}
	s.log.WithFields(logrus.Fields{
		"symbol": mapping.SymbolA,
		"id":     p.ID,
		"side":   side,
		"spread": entry.SpreadPct,
		"qty":    entry.Quantity,
	}).Info("[positions] 开仓")
	return p, nil
}

// MarkClosing 发出场单前调用：OPEN -> CLOSING。
// 仓位不存在或不是 OPEN 时原样返回（不存在返回 nil）。
func (s *Store) MarkClosing(ctx context.Context, symbolA string) (*domain.Position, error) {
	unlock := s.locks.lock(symbolA)
	defer unlock()

	p, err := s.load(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if p == nil || p.State != domain.PositionStateOpen {
		return p, nil
	}
	p.State = domain.PositionStateClosing
	if err := s.save(ctx, p, "mark_closing"); err != nil {
		return p, err
	}
	return p, nil
}

// Reopen 出场两腿都未成交（回滚）时把 CLOSING 恢复为 OPEN；其他状态原样返回。
func (s *Store) Reopen(ctx context.Context, symbolA string) (*domain.Position, error) {
	unlock := s.locks.lock(symbolA)
	defer unlock()

	p, err := s.load(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if p == nil || p.State != domain.PositionStateClosing {
		return p, nil
	}
	p.State = domain.PositionStateOpen
	if err := s.save(ctx, p, "reopen"); err != nil {
		return p, err
	}
	s.log.WithField("symbol", symbolA).Warn("[positions] 出场回滚，仓位恢复为 OPEN")
	return p, nil
}

// Reduce 出场只成交了一部分（两腿等量）时扣减仓位数量，并恢复为 OPEN。
// 名义金额按剩余比例缩小；CLOSED 或不存在时原样返回。
func (s *Store) Reduce(ctx context.Context, symbolA string, closedQty float64) (*domain.Position, error) {
	if closedQty <= 0 {
		return nil, fmt.Errorf("positions: reduce quantity must be positive, got %v", closedQty)
	}
	unlock := s.locks.lock(symbolA)
	defer unlock()

	p, err := s.load(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if p == nil || p.State == domain.PositionStateClosed {
		return p, nil
	}
	before := p.Quantity
	remaining := before - closedQty
	if remaining < 0 {
		remaining = 0
	}
	if before > 0 {
		p.Notional *= remaining / before
	}
	p.Quantity = remaining
	p.State = domain.PositionStateOpen
	if err := s.save(ctx, p, "reduce"); err != nil {
		return p, err
	}
	s.log.WithFields(logrus.Fields{
		"symbol":    symbolA,
		"closed":    closedQty,
		"remaining": remaining,
	}).Warn("[positions] 出场部分成交，仓位减少")
	return p, nil
}

// Close 平仓并计算盈亏。已 CLOSED 时幂等返回原记录；不存在返回 nil。
func (s *Store) Close(ctx context.Context, symbolA string, exit domain.SpreadSnapshot, reason string) (*domain.Position, error) {
	unlock := s.locks.lock(symbolA)
	defer unlock()

	p, err := s.load(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if p.State == domain.PositionStateClosed {
		return p, nil
	}
	if err := s.closeLocked(ctx, p, exit, reason); err != nil {
		return p, err
	}
	return p, nil
}

// closeLocked 调用方须持有该 symbol 的锁
func (s *Store) closeLocked(ctx context.Context, p *domain.Position, exit domain.SpreadSnapshot, reason string) error {
	at := exit.At
	if at.IsZero() {
		at = s.now()
	}
	exitSpread := exit.SpreadPct
	pnl := domain.SpreadPnL(p.EntrySide, p.EntrySpreadPct, exitSpread, s.cfg.NotionalBase)

	p.State = domain.PositionStateClosed
	p.ExitTime = &at
	p.ExitSpreadPct = &exitSpread
	p.ExitReason = reason
	p.RealizedPnL = &pnl

	if err := s.save(ctx, p, "close"); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"symbol":       p.Mapping.SymbolA,
		"id":           p.ID,
		"reason":       reason,
		"entry_spread": p.EntrySpreadPct,
		"exit_spread":  exitSpread,
		"pnl":          pnl,
	}).Info("[positions] 平仓")
	return nil
}

// Get 读取仓位；存储不可用时返回 nil（已记录日志）
func (s *Store) Get(ctx context.Context, symbolA string) *domain.Position {
	p, err := s.load(ctx, symbolA)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbolA).Warn("[positions] 读取仓位失败，按不存在处理")
		return nil
	}
	return p
}

// ListOpen 所有 OPEN 仓位；存储不可用时返回空
func (s *Store) ListOpen(ctx context.Context) []*domain.Position {
	return s.list(ctx, func(p *domain.Position) bool { return p.State == domain.PositionStateOpen })
}

// ListActive OPEN + CLOSING（仍占用敞口的仓位）
func (s *Store) ListActive(ctx context.Context) []*domain.Position {
	return s.list(ctx, func(p *domain.Position) bool { return p.State != domain.PositionStateClosed })
}

func (s *Store) list(ctx context.Context, keep func(*domain.Position) bool) []*domain.Position {
	keys, err := s.kv.ScanPrefix(ctx, s.cfg.KeyPrefix)
	if err != nil {
		metrics.PositionReadFailures.Add(1)
		s.log.WithError(err).Warn("[positions] 扫描仓位失败，返回空列表")
		return nil
	}
	out := make([]*domain.Position, 0, len(keys))
	for _, k := range keys {
		p, err := s.load(ctx, strings.TrimPrefix(k, s.cfg.KeyPrefix))
		if err != nil {
			s.log.WithError(err).WithField("key", k).Warn("[positions] 读取仓位失败，跳过")
			continue
		}
		if p != nil && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mapping.SymbolA < out[j].Mapping.SymbolA })
	return out
}

// Inventory OPEN 仓位总数及按方向统计
func (s *Store) Inventory(ctx context.Context) Inventory {
	inv := Inventory{BySide: map[domain.EntrySide]int{
		domain.EntrySideLongSpread:  0,
		domain.EntrySideShortSpread: 0,
	}}
	for _, p := range s.ListOpen(ctx) {
		inv.Total++
		inv.BySide[p.EntrySide]++
	}
	return inv
}

// load 不存在返回 (nil, nil)
func (s *Store) load(ctx context.Context, symbolA string) (*domain.Position, error) {
	b, err := s.kv.Get(ctx, s.key(symbolA))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		metrics.PositionReadFailures.Add(1)
		return nil, err
	}
	var fields map[string]string
	if err := json.Unmarshal(b, &fields); err != nil {
		metrics.PositionReadFailures.Add(1)
		return nil, fmt.Errorf("decode position %s: %w", symbolA, err)
	}
	return domain.PositionFromFields(fields)
}

func (s *Store) save(ctx context.Context, p *domain.Position, op string) error {
	b, err := json.Marshal(p.Fields())
	if err == nil {
		err = s.kv.SetWithExpiry(ctx, s.key(p.Mapping.SymbolA), b, s.cfg.TTL)
	}
	if err != nil {
		metrics.PositionWriteFailures.Add(1)
		s.log.WithError(err).WithFields(logrus.Fields{
			"symbol":     p.Mapping.SymbolA,
			"id":         p.ID,
			"op":         op,
			"state":      p.State,
			"ssot_drift": true,
		}).Error("[positions] 仓位写入失败：SSOT 与真实持仓可能已偏离，需人工核对")
		return fmt.Errorf("persist position %s (%s): %w", p.Mapping.SymbolA, op, err)
	}
	metrics.PositionWrites.Add(1)
	return nil
}
