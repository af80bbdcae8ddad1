package risk

import "time"

// 约定：除特别说明外，阈值 <= 0 表示关闭对应检查。

// VenueTierConfig 交易所层
type VenueTierConfig struct {
	MaxDailyLoss         float64 // 单交易所当日最大亏损（结算货币，正数）
	MaxConsecutiveErrors int64   // 单交易所连续下单失败上限
}

// RouteTierConfig 路由层（SymbolA|SymbolB）
type RouteTierConfig struct {
	MaxConsecutiveLosses int           // 连续亏损笔数上限，达到后冷却
	Cooldown             time.Duration // 路由冷却时长
	MinScore             float64       // 最近窗口内执行成功率下限 [0,1]
	ScoreWindow          int           // 评分窗口大小（默认 20）
	MinScoreSamples      int           // 样本数不足时不评分（默认 5）
}

// SymbolTierConfig 单币种层
type SymbolTierConfig struct {
	Capital          float64 // 组合资金（A 所计价），用于计算敞口占比
	MaxExposureRatio float64 // 单币种敞口占资金比例上限，超过则降级名义金额
	MinNotional      float64 // 降级后低于该金额直接拒绝
	MaxDailyDrawdown float64 // 单币种当日最大亏损（结算货币，正数）
}

// PortfolioTierConfig 组合层
type PortfolioTierConfig struct {
	MaxDailyLoss     float64 // 组合当日最大亏损（正数），触发硬拒绝
	MaxOpenPositions int     // 最大同时持仓数
	MaxImbalance     float64 // |库存失衡| 硬上限（不区分方向）
}

// CrossVenueTierConfig 跨所层
type CrossVenueTierConfig struct {
	MaxExposureRisk      float64 // 库存暴露风险上限 [0,1]
	MaxImbalance         float64 // 库存失衡阈值，只拦截会加剧失衡方向的入场
	MaxDirectionalBias   float64 // 同方向持仓占比上限 (0,1]
	MinBiasSample        int     // 持仓数低于该值时跳过方向偏置检查
	DailyLossLimit       float64 // 当日盈亏下限（负数，0 表示关闭）
	MaxConsecutiveLosses int     // 连续亏损笔数上限
	DailyLossCooldown    time.Duration
	LossStreakCooldown   time.Duration
}

// Config 风控闸门配置
type Config struct {
	VenueA        string
	VenueB        string
	DefaultFXRate float64 // 取不到汇率时的兜底（B 计价 -> A 计价）

	Venue      VenueTierConfig
	Route      RouteTierConfig
	Symbol     SymbolTierConfig
	Portfolio  PortfolioTierConfig
	CrossVenue CrossVenueTierConfig
}

func (c Config) withDefaults() Config {
	if c.Route.ScoreWindow <= 0 {
		c.Route.ScoreWindow = 20
	}
	if c.Route.MinScoreSamples <= 0 {
		c.Route.MinScoreSamples = 5
	}
	if c.Route.Cooldown <= 0 {
		c.Route.Cooldown = 10 * time.Minute
	}
	if c.CrossVenue.DailyLossCooldown <= 0 {
		c.CrossVenue.DailyLossCooldown = time.Hour
	}
	if c.CrossVenue.LossStreakCooldown <= 0 {
		c.CrossVenue.LossStreakCooldown = 30 * time.Minute
	}
	if c.CrossVenue.MinBiasSample <= 0 {
		c.CrossVenue.MinBiasSample = 5
	}
	return c
}

// DefaultConfig 常用默认值
func DefaultConfig(venueA, venueB string) Config {
	return Config{
		VenueA:        venueA,
		VenueB:        venueB,
		DefaultFXRate: 1,
		Venue: VenueTierConfig{
			MaxConsecutiveErrors: 5,
		},
		Route: RouteTierConfig{
			MaxConsecutiveLosses: 3,
			Cooldown:             10 * time.Minute,
			MinScore:             0.4,
		},
		Symbol: SymbolTierConfig{
			MaxExposureRatio: 0.2,
		},
		Portfolio: PortfolioTierConfig{
			MaxOpenPositions: 10,
			MaxImbalance:     0.9,
		},
		CrossVenue: CrossVenueTierConfig{
			MaxExposureRisk:      0.9,
			MaxImbalance:         0.3,
			MaxDirectionalBias:   0.8,
			MinBiasSample:        5,
			MaxConsecutiveLosses: 5,
			DailyLossCooldown:    time.Hour,
			LossStreakCooldown:   30 * time.Minute,
		},
	}
}
