package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// VenueConfig 单个交易所配置（纸面交易所参数一并放在这里）
type VenueConfig struct {
	ID           string  `yaml:"id" json:"id"`
	Quote        string  `yaml:"quote" json:"quote"` // 计价货币，例如 KRW / USDT
	Credentials  bool    `yaml:"credentials" json:"credentials"`
	FillMode     string  `yaml:"fill_mode" json:"fill_mode"`         // full / none / partial / reject / on_poll
	PartialRatio float64 `yaml:"partial_ratio" json:"partial_ratio"` // partial 模式成交比例
	BaseBalance  float64 `yaml:"base_balance" json:"base_balance"`
	QuoteBalance float64 `yaml:"quote_balance" json:"quote_balance"`
}

// VenuesConfig 两个交易所
type VenuesConfig struct {
	A VenueConfig `yaml:"a" json:"a"`
	B VenueConfig `yaml:"b" json:"b"`
}

// FXConfig 汇率
type FXConfig struct {
	DefaultRate float64            `yaml:"default_rate" json:"default_rate"` // B 计价 -> A 计价
	Rates       map[string]float64 `yaml:"rates" json:"rates"`               // 例如 "USDT/KRW": 1380
}

type VenueRiskConfig struct {
	MaxDailyLoss         float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxConsecutiveErrors int64   `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
}

type RouteRiskConfig struct {
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
	Cooldown             time.Duration `yaml:"cooldown" json:"cooldown"`
	MinScore             float64       `yaml:"min_score" json:"min_score"`
	ScoreWindow          int           `yaml:"score_window" json:"score_window"`
	MinScoreSamples      int           `yaml:"min_score_samples" json:"min_score_samples"`
}

type SymbolRiskConfig struct {
	Capital          float64 `yaml:"capital" json:"capital"`
	MaxExposureRatio float64 `yaml:"max_exposure_ratio" json:"max_exposure_ratio"`
	MinNotional      float64 `yaml:"min_notional" json:"min_notional"`
	MaxDailyDrawdown float64 `yaml:"max_daily_drawdown" json:"max_daily_drawdown"`
}

type PortfolioRiskConfig struct {
	MaxDailyLoss     float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxOpenPositions int     `yaml:"max_open_positions" json:"max_open_positions"`
	MaxImbalance     float64 `yaml:"max_imbalance" json:"max_imbalance"`
}

type CrossVenueRiskConfig struct {
	MaxExposureRisk      float64       `yaml:"max_exposure_risk" json:"max_exposure_risk"`
	MaxImbalance         float64       `yaml:"max_imbalance" json:"max_imbalance"`
	MaxDirectionalBias   float64       `yaml:"max_directional_bias" json:"max_directional_bias"`
	MinBiasSample        int           `yaml:"min_bias_sample" json:"min_bias_sample"`
	DailyLossLimit       float64       `yaml:"daily_loss_limit" json:"daily_loss_limit"` // 负数；0 表示关闭
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
	DailyLossCooldown    time.Duration `yaml:"daily_loss_cooldown" json:"daily_loss_cooldown"`
	LossStreakCooldown   time.Duration `yaml:"loss_streak_cooldown" json:"loss_streak_cooldown"`
}

// RiskConfig 风控闸门各层阈值；阈值 <= 0 表示关闭该项检查
type RiskConfig struct {
	Venue      VenueRiskConfig      `yaml:"venue" json:"venue"`
	Route      RouteRiskConfig      `yaml:"route" json:"route"`
	Symbol     SymbolRiskConfig     `yaml:"symbol" json:"symbol"`
	Portfolio  PortfolioRiskConfig  `yaml:"portfolio" json:"portfolio"`
	CrossVenue CrossVenueRiskConfig `yaml:"cross_venue" json:"cross_venue"`
}

// ExecutorConfig 两腿执行器
type ExecutorConfig struct {
	FillTimeout       time.Duration `yaml:"fill_timeout" json:"fill_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	CancelTimeout     time.Duration `yaml:"cancel_timeout" json:"cancel_timeout"`
	Epsilon           float64       `yaml:"epsilon" json:"epsilon"`
	OrderType         string        `yaml:"order_type" json:"order_type"`
	QuantityPrecision int32         `yaml:"quantity_precision" json:"quantity_precision"`
	MinQuantity       float64       `yaml:"min_quantity" json:"min_quantity"`
}

// PositionsConfig 仓位存储
type PositionsConfig struct {
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	NotionalBase float64       `yaml:"notional_base" json:"notional_base"`
}

// PnLConfig 盈亏结算
type PnLConfig struct {
	SettlementCurrency string `yaml:"settlement_currency" json:"settlement_currency"`
}

// InventoryConfig 库存阈值
type InventoryConfig struct {
	ImbalanceThreshold float64 `yaml:"imbalance_threshold" json:"imbalance_threshold"`
	ExposureThreshold  float64 `yaml:"exposure_threshold" json:"exposure_threshold"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	DB       int    `yaml:"db" json:"db"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type BadgerConfig struct {
	Path     string `yaml:"path" json:"path"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"`
}

// StorageConfig 仓位 SSOT 后端：memory / redis / badger
type StorageConfig struct {
	Backend string       `yaml:"backend" json:"backend"`
	Redis   RedisConfig  `yaml:"redis" json:"redis"`
	Badger  BadgerConfig `yaml:"badger" json:"badger"`
}

// JournalConfig 执行流水（sqlite）；Path 为空则不记录
type JournalConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StateConfig 进程级状态（风控冷却等）的落盘目录；为空则不持久化
type StateConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// AlertConfig 告警
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	Source     string `yaml:"source" json:"source"`
}

// MetricsConfig 状态/指标服务；ListenAddr 为空则不启动
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LogConfig 日志
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// TicksConfig 编排器节拍
type TicksConfig struct {
	Entry time.Duration `yaml:"entry" json:"entry"`
	Exit  time.Duration `yaml:"exit" json:"exit"`
}

// Config 应用配置
type Config struct {
	Venues    VenuesConfig    `yaml:"venues" json:"venues"`
	FX        FXConfig        `yaml:"fx" json:"fx"`
	Risk      RiskConfig      `yaml:"risk" json:"risk"`
	Executor  ExecutorConfig  `yaml:"executor" json:"executor"`
	Positions PositionsConfig `yaml:"positions" json:"positions"`
	PnL       PnLConfig       `yaml:"pnl" json:"pnl"`
	Inventory InventoryConfig `yaml:"inventory" json:"inventory"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Journal   JournalConfig   `yaml:"journal" json:"journal"`
	State     StateConfig     `yaml:"state" json:"state"`
	Alert     AlertConfig     `yaml:"alert" json:"alert"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Ticks     TicksConfig     `yaml:"ticks" json:"ticks"`
	DryRun    bool            `yaml:"dry_run" json:"dry_run"` // 纸交易模式：两所都使用纸面交易所
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Get 最近一次成功加载的配置
func Get() *Config {
	return globalConfig
}

// Default 默认配置（文件中没有出现的字段保持这里的值）
func Default() *Config {
	return &Config{
		Venues: VenuesConfig{
			A: VenueConfig{ID: "upbit", Quote: "KRW", Credentials: true, FillMode: "full"},
			B: VenueConfig{ID: "binance", Quote: "USDT", Credentials: true, FillMode: "full"},
		},
		FX: FXConfig{DefaultRate: 1300},
		Risk: RiskConfig{
			Venue: VenueRiskConfig{MaxConsecutiveErrors: 5},
			Route: RouteRiskConfig{
				MaxConsecutiveLosses: 3,
				Cooldown:             10 * time.Minute,
				MinScore:             0.4,
				ScoreWindow:          20,
				MinScoreSamples:      5,
			},
			Symbol:    SymbolRiskConfig{MaxExposureRatio: 0.2},
			Portfolio: PortfolioRiskConfig{MaxOpenPositions: 10, MaxImbalance: 0.9},
			CrossVenue: CrossVenueRiskConfig{
				MaxExposureRisk:      0.9,
				MaxImbalance:         0.3,
				MaxDirectionalBias:   0.8,
				MinBiasSample:        5,
				DailyLossLimit:       -1_000_000,
				MaxConsecutiveLosses: 5,
				DailyLossCooldown:    time.Hour,
				LossStreakCooldown:   30 * time.Minute,
			},
		},
		Executor: ExecutorConfig{
			FillTimeout:       10 * time.Second,
			PollInterval:      time.Second,
			CancelTimeout:     5 * time.Second,
			Epsilon:           1e-9,
			OrderType:         "limit",
			QuantityPrecision: 8,
		},
		Positions: PositionsConfig{
			KeyPrefix:    "position:",
			TTL:          7 * 24 * time.Hour,
			NotionalBase: 1_000_000,
		},
		PnL:       PnLConfig{SettlementCurrency: "KRW"},
		Inventory: InventoryConfig{ImbalanceThreshold: 0.3, ExposureThreshold: 0.5},
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
			Badger:  BadgerConfig{Path: "data/positions"},
		},
		Journal: JournalConfig{Path: "data/journal.db"},
		State:   StateConfig{Dir: "data/state"},
		Alert:   AlertConfig{Source: "arbcore"},
		Metrics: MetricsConfig{ListenAddr: "127.0.0.1:9090"},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/arbcore.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Ticks:  TicksConfig{Entry: 5 * time.Second, Exit: 5 * time.Second},
		DryRun: true,
	}
}

// Load 加载配置（使用 SetConfigPath 设置的路径）
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 默认值 -> 配置文件 -> .env / 环境变量，最后校验。
// filePath 为空时只使用默认值与环境变量。
func LoadFromFile(filePath string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	globalConfig = cfg
	configFilePath = filePath
	return cfg, nil
}

// loadConfigFile 解析到已填充默认值的 cfg 上（支持 YAML 和 JSON）
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖（密钥与端点类配置）
func applyEnv(cfg *Config) {
	if v := getEnv("ARB_REDIS_ADDR", ""); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := getEnv("ARB_REDIS_PASSWORD", ""); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := getEnv("ARB_STORAGE_BACKEND", ""); v != "" {
		cfg.Storage.Backend = v
	}
	if v := getEnv("ARB_ALERT_WEBHOOK", ""); v != "" {
		cfg.Alert.WebhookURL = v
	}
	if v := getEnv("ARB_LOG_LEVEL", ""); v != "" {
		cfg.Log.Level = v
	}
	if v := getEnv("ARB_METRICS_ADDR", ""); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	cfg.DryRun = parseBoolEnv("ARB_DRY_RUN", cfg.DryRun)
	cfg.FX.DefaultRate = parseFloatEnv("ARB_FX_RATE", cfg.FX.DefaultRate)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Venues.A.ID == "" || c.Venues.B.ID == "" {
		return fmt.Errorf("venues.a.id 与 venues.b.id 必须配置")
	}
	if c.Venues.A.ID == c.Venues.B.ID {
		return fmt.Errorf("两个交易所 id 不能相同: %s", c.Venues.A.ID)
	}
	if !c.DryRun {
		// 真实交易所适配器不在本进程内
		return fmt.Errorf("仅支持 dry_run 模式（纸面交易所）")
	}
	if c.FX.DefaultRate <= 0 {
		return fmt.Errorf("fx.default_rate 必须大于 0")
	}
	for pair, rate := range c.FX.Rates {
		if !strings.Contains(pair, "/") {
			return fmt.Errorf("fx.rates 键格式应为 FROM/TO: %s", pair)
		}
		if rate <= 0 {
			return fmt.Errorf("fx.rates[%s] 必须大于 0", pair)
		}
	}

	r := c.Risk
	if r.CrossVenue.DailyLossLimit > 0 {
		return fmt.Errorf("risk.cross_venue.daily_loss_limit 必须 <= 0（负数表示亏损上限，0 关闭）")
	}
	if r.Symbol.MaxExposureRatio > 1 {
		return fmt.Errorf("risk.symbol.max_exposure_ratio 不能大于 1")
	}
	for name, v := range map[string]float64{
		"risk.route.min_score":                  r.Route.MinScore,
		"risk.portfolio.max_imbalance":          r.Portfolio.MaxImbalance,
		"risk.cross_venue.max_exposure_risk":    r.CrossVenue.MaxExposureRisk,
		"risk.cross_venue.max_imbalance":        r.CrossVenue.MaxImbalance,
		"risk.cross_venue.max_directional_bias": r.CrossVenue.MaxDirectionalBias,
	} {
		if v > 1 {
			return fmt.Errorf("%s 必须在 [0, 1] 之间: %v", name, v)
		}
	}

	if c.Executor.FillTimeout < 0 || c.Executor.PollInterval < 0 || c.Executor.CancelTimeout < 0 {
		return fmt.Errorf("executor 超时配置不能为负数")
	}
	if c.Executor.QuantityPrecision < 0 {
		return fmt.Errorf("executor.quantity_precision 不能为负数")
	}
	switch strings.ToLower(c.Executor.OrderType) {
	case "", "limit", "market":
	default:
		return fmt.Errorf("未知的 executor.order_type: %s", c.Executor.OrderType)
	}

	switch c.Storage.Backend {
	case "", "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr 未配置")
		}
	case "badger":
		if c.Storage.Badger.Path == "" && !c.Storage.Badger.InMemory {
			return fmt.Errorf("storage.badger.path 未配置")
		}
	default:
		return fmt.Errorf("未知的存储后端: %s", c.Storage.Backend)
	}

	if c.PnL.SettlementCurrency == "" {
		return fmt.Errorf("pnl.settlement_currency 未配置")
	}
	if c.Ticks.Entry < 0 || c.Ticks.Exit < 0 {
		return fmt.Errorf("ticks 间隔不能为负数")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
