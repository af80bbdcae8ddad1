package domain

import "time"

// RiskTier 风控层级
type RiskTier string

const (
	TierNone       RiskTier = "none"
	TierVenue      RiskTier = "venue"
	TierRoute      RiskTier = "route"
	TierSymbol     RiskTier = "symbol"
	TierPortfolio  RiskTier = "portfolio"
	TierCrossVenue RiskTier = "cross_venue"
)

// 拒绝/降级原因码
const (
	ReasonOK                     = "ok"
	ReasonNoAction               = "no_action"
	ReasonCooldown               = "cooldown"
	ReasonInternalError          = "internal_error"
	ReasonVenueUnhealthy         = "venue_unhealthy"
	ReasonVenueHalted            = "venue_halted"
	ReasonVenueErrorStreak       = "venue_error_streak"
	ReasonVenueDailyLoss         = "venue_daily_loss"
	ReasonRouteCooldown          = "route_cooldown"
	ReasonRouteLossStreak        = "route_loss_streak"
	ReasonRouteLowScore          = "route_low_score"
	ReasonSymbolExposureDegraded = "symbol_exposure_degraded"
	ReasonSymbolExposureLimit    = "symbol_exposure_limit"
	ReasonSymbolDrawdown         = "symbol_drawdown"
	ReasonPortfolioDailyLoss     = "portfolio_daily_loss"
	ReasonPortfolioMaxPositions  = "portfolio_max_positions"
	ReasonPortfolioImbalance     = "portfolio_imbalance"
	ReasonCrossExposureLimit     = "cross_exposure_limit"
	ReasonCrossImbalance         = "cross_imbalance"
	ReasonCrossDirectionalBias   = "cross_directional_bias"
	ReasonCrossDailyLossLimit    = "cross_daily_loss_limit"
	ReasonCrossConsecutiveLosses = "cross_consecutive_losses"
)

// RiskDecision 风控闸门的输出
//
// 约定：Allowed=false 时 Tier 一定不是 TierNone。
type RiskDecision struct {
	Allowed         bool
	Tier            RiskTier
	ReasonCode      string
	Details         map[string]any
	CooldownUntil   *time.Time
	ReducedNotional *float64
}

// Allow 放行
func Allow() RiskDecision {
	return RiskDecision{Allowed: true, Tier: TierNone, ReasonCode: ReasonOK}
}

// Block 拒绝。tier 为空或 none 时归到 cross_venue，保证拒绝结果总能定位到某一层。
func Block(tier RiskTier, reason string, details map[string]any) RiskDecision {
	if tier == "" || tier == TierNone {
		tier = TierCrossVenue
	}
	return RiskDecision{Allowed: false, Tier: tier, ReasonCode: reason, Details: details}
}

// Degrade 放行但把名义金额降到 notional
func Degrade(tier RiskTier, reason string, notional float64, details map[string]any) RiskDecision {
	n := notional
	return RiskDecision{Allowed: true, Tier: tier, ReasonCode: reason, Details: details, ReducedNotional: &n}
}

// WithCooldown 附加冷却截止时间
func (r RiskDecision) WithCooldown(until time.Time) RiskDecision {
	u := until
	r.CooldownUntil = &u
	return r
}

// Degraded 是否为降级放行
func (r RiskDecision) Degraded() bool {
	return r.Allowed && r.ReducedNotional != nil
}
