package risk

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/betbot/spreadarb/internal/domain"
)

// ---- venue ----

// checkVenue 健康状态、人工熔断与连续错误对出场同样生效（单腿下不出去）；
// 当日亏损只拦入场。
func (g *Gate) checkVenue(_ context.Context, d domain.Decision, _ *evalState) (*domain.RiskDecision, error) {
	for _, venue := range []string{g.cfg.VenueA, g.cfg.VenueB} {
		if venue == "" {
			continue
		}
		if g.deps.Health != nil {
			if status := g.deps.Health.GetStatus(venue); !status.Tradeable() {
				rd := domain.Block(domain.TierVenue, domain.ReasonVenueUnhealthy, map[string]any{
					"venue":  venue,
					"status": string(status),
				})
				return &rd, nil
			}
		}

		err := g.breaker(venue).AllowTrading()
		if err == nil {
			continue
		}
		var be *BreakerError
		if !errors.As(err, &be) {
			return nil, err
		}
		if be.Reason == BreakerDailyLoss && !d.Action.IsEntry() {
			continue
		}
		reason := domain.ReasonVenueHalted
		switch be.Reason {
		case BreakerErrorStreak:
			reason = domain.ReasonVenueErrorStreak
		case BreakerDailyLoss:
			reason = domain.ReasonVenueDailyLoss
		}
		rd := domain.Block(domain.TierVenue, reason, map[string]any{"venue": venue})
		return &rd, nil
	}
	return nil, nil
}

// ---- route ----

type routeState struct {
	consecutiveLosses int
	cooldownUntil     time.Time
	outcomes          []bool // 环形窗口，true 表示执行成功
	next              int
}

func (r *routeState) push(ok bool, window int) {
	if len(r.outcomes) < window {
		r.outcomes = append(r.outcomes, ok)
		return
	}
	r.outcomes[r.next] = ok
	r.next = (r.next + 1) % window
}

func (r *routeState) score() float64 {
	if len(r.outcomes) == 0 {
		return 1
	}
	ok := 0
	for _, o := range r.outcomes {
		if o {
			ok++
		}
	}
	return float64(ok) / float64(len(r.outcomes))
}

func (g *Gate) route(key string) *routeState {
	r, ok := g.routes[key]
	if !ok {
		r = &routeState{}
		g.routes[key] = r
	}
	return r
}

func (g *Gate) checkRoute(_ context.Context, d domain.Decision, st *evalState) (*domain.RiskDecision, error) {
	cfg := g.cfg.Route
	key := d.RouteKey()

	g.routesMu.Lock()
	defer g.routesMu.Unlock()
	r := g.route(key)

	if st.now.Before(r.cooldownUntil) {
		rd := domain.Block(domain.TierRoute, domain.ReasonRouteCooldown, map[string]any{
			"route": key,
		}).WithCooldown(r.cooldownUntil)
		return &rd, nil
	}

	if cfg.MaxConsecutiveLosses > 0 && r.consecutiveLosses >= cfg.MaxConsecutiveLosses {
		r.cooldownUntil = st.now.Add(cfg.Cooldown)
		losses := r.consecutiveLosses
		r.consecutiveLosses = 0
		rd := domain.Block(domain.TierRoute, domain.ReasonRouteLossStreak, map[string]any{
			"route":              key,
			"consecutive_losses": losses,
			"limit":              cfg.MaxConsecutiveLosses,
		}).WithCooldown(r.cooldownUntil)
		return &rd, nil
	}

	if cfg.MinScore > 0 && len(r.outcomes) >= cfg.MinScoreSamples {
		if score := r.score(); score < cfg.MinScore {
			rd := domain.Block(domain.TierRoute, domain.ReasonRouteLowScore, map[string]any{
				"route":     key,
				"score":     score,
				"min_score": cfg.MinScore,
				"samples":   len(r.outcomes),
			})
			return &rd, nil
		}
	}
	return nil, nil
}

// ---- symbol ----

type symbolState struct {
	dayKey   int64
	dailyPnL float64
}

func (g *Gate) symbolDailyPnL(symbol string, now time.Time) float64 {
	g.symbolsMu.Lock()
	defer g.symbolsMu.Unlock()
	s, ok := g.symbols[symbol]
	if !ok || s.dayKey != now.Unix()/86400 {
		return 0
	}
	return s.dailyPnL
}

func (g *Gate) checkSymbol(ctx context.Context, d domain.Decision, st *evalState) (*domain.RiskDecision, error) {
	cfg := g.cfg.Symbol

	if cfg.MaxDailyDrawdown > 0 {
		if pnl := g.symbolDailyPnL(d.SymbolA, st.now); pnl <= -cfg.MaxDailyDrawdown {
			rd := domain.Block(domain.TierSymbol, domain.ReasonSymbolDrawdown, map[string]any{
				"symbol":    d.SymbolA,
				"daily_pnl": pnl,
				"limit":     cfg.MaxDailyDrawdown,
			})
			return &rd, nil
		}
	}

	if cfg.Capital <= 0 || cfg.MaxExposureRatio <= 0 {
		return nil, nil
	}

	existing := 0.0
	if g.deps.Positions != nil {
		if p := g.deps.Positions.Get(ctx, d.SymbolA); p != nil && !p.IsClosed() {
			existing = p.Notional
		}
	}
	maxNotional := cfg.Capital * cfg.MaxExposureRatio
	ratio := (existing + d.Notional) / cfg.Capital
	if existing+d.Notional <= maxNotional {
		return nil, nil
	}

	remaining := maxNotional - existing
	details := map[string]any{
		"symbol":         d.SymbolA,
		"exposure_ratio": ratio,
		"max_ratio":      cfg.MaxExposureRatio,
		"existing":       existing,
		"requested":      d.Notional,
		"remaining":      math.Max(remaining, 0),
	}
	if remaining <= 0 || remaining < cfg.MinNotional {
		rd := domain.Block(domain.TierSymbol, domain.ReasonSymbolExposureLimit, details)
		return &rd, nil
	}
	rd := domain.Degrade(domain.TierSymbol, domain.ReasonSymbolExposureDegraded, remaining, details)
	return &rd, nil
}

// ---- portfolio ----

func (g *Gate) checkPortfolio(ctx context.Context, d domain.Decision, st *evalState) (*domain.RiskDecision, error) {
	cfg := g.cfg.Portfolio

	// 亏损与失衡上限只约束入场，出场（含止损）必须能把仓位平掉
	if !d.Action.IsEntry() {
		return nil, nil
	}

	if cfg.MaxDailyLoss > 0 && g.deps.PnL != nil {
		daily := g.deps.PnL.DailyPnL().InexactFloat64()
		if daily <= -cfg.MaxDailyLoss {
			rd := domain.Block(domain.TierPortfolio, domain.ReasonPortfolioDailyLoss, map[string]any{
				"daily_pnl": daily,
				"limit":     -cfg.MaxDailyLoss,
			})
			return &rd, nil
		}
	}

	if cfg.MaxOpenPositions > 0 && g.deps.Positions != nil {
		if n := len(st.openPositions(ctx, g.deps.Positions)); n >= cfg.MaxOpenPositions {
			rd := domain.Block(domain.TierPortfolio, domain.ReasonPortfolioMaxPositions, map[string]any{
				"open_positions": n,
				"limit":          cfg.MaxOpenPositions,
			})
			return &rd, nil
		}
	}

	if cfg.MaxImbalance > 0 && g.deps.Inventory != nil {
		imb := g.deps.Inventory.ImbalanceRatio(st.priceA, st.priceB)
		if math.Abs(imb) >= cfg.MaxImbalance {
			rd := domain.Block(domain.TierPortfolio, domain.ReasonPortfolioImbalance, map[string]any{
				"imbalance": imb,
				"limit":     cfg.MaxImbalance,
			})
			return &rd, nil
		}
	}
	return nil, nil
}

// ---- cross venue ----

func (g *Gate) checkCrossVenue(ctx context.Context, d domain.Decision, st *evalState) (*domain.RiskDecision, error) {
	cfg := g.cfg.CrossVenue
	side := d.Side()

	if g.deps.Inventory != nil {
		if cfg.MaxExposureRisk > 0 {
			risk := g.deps.Inventory.ExposureRisk(st.priceA, st.priceB)
			if risk > cfg.MaxExposureRisk {
				rd := domain.Block(domain.TierCrossVenue, domain.ReasonCrossExposureLimit, map[string]any{
					"exposure_risk": risk,
					"limit":         cfg.MaxExposureRisk,
				})
				return &rd, nil
			}
		}

		// 只拦截会加剧失衡的方向：short_spread 买 A，long_spread 买 B
		if cfg.MaxImbalance > 0 {
			imb := g.deps.Inventory.ImbalanceRatio(st.priceA, st.priceB)
			worsens := (imb > cfg.MaxImbalance && side == domain.EntrySideShortSpread) ||
				(imb < -cfg.MaxImbalance && side == domain.EntrySideLongSpread)
			if worsens {
				rd := domain.Block(domain.TierCrossVenue, domain.ReasonCrossImbalance, map[string]any{
					"imbalance": imb,
					"threshold": cfg.MaxImbalance,
					"side":      string(side),
				})
				return &rd, nil
			}
		}
	}

	if cfg.MaxDirectionalBias > 0 && g.deps.Positions != nil {
		open := st.openPositions(ctx, g.deps.Positions)
		if len(open) >= cfg.MinBiasSample {
			same := 0
			for _, p := range open {
				if p.EntrySide == side {
					same++
				}
			}
			bias := float64(same) / float64(len(open))
			if bias > cfg.MaxDirectionalBias {
				rd := domain.Block(domain.TierCrossVenue, domain.ReasonCrossDirectionalBias, map[string]any{
					"side":      string(side),
					"same_side": same,
					"total":     len(open),
					"bias":      bias,
					"limit":     cfg.MaxDirectionalBias,
				})
				return &rd, nil
			}
		}
	}

	if g.deps.PnL != nil {
		if cfg.DailyLossLimit < 0 {
			daily := g.deps.PnL.DailyPnL().InexactFloat64()
			if daily <= cfg.DailyLossLimit {
				until := g.cooldowns.Set(d.SymbolA, st.now.Add(cfg.DailyLossCooldown), domain.ReasonCrossDailyLossLimit)
				rd := domain.Block(domain.TierCrossVenue, domain.ReasonCrossDailyLossLimit, map[string]any{
					"daily_pnl": daily,
					"limit":     cfg.DailyLossLimit,
				}).WithCooldown(until)
				return &rd, nil
			}
		}
		if cfg.MaxConsecutiveLosses > 0 {
			if losses := g.deps.PnL.ConsecutiveLosses(); losses >= cfg.MaxConsecutiveLosses {
				until := g.cooldowns.Set(d.SymbolA, st.now.Add(cfg.LossStreakCooldown), domain.ReasonCrossConsecutiveLosses)
				rd := domain.Block(domain.TierCrossVenue, domain.ReasonCrossConsecutiveLosses, map[string]any{
					"consecutive_losses": losses,
					"limit":              cfg.MaxConsecutiveLosses,
				}).WithCooldown(until)
				return &rd, nil
			}
		}
	}
	return nil, nil
}
