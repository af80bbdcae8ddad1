package execution

import (
	"time"

	"github.com/betbot/spreadarb/internal/domain"
)

// Config 两腿执行器配置
type Config struct {
	VenueA string
	VenueB string

	// DefaultFXRate 取不到汇率时的兜底（B 计价 -> A 计价）
	DefaultFXRate float64

	FillTimeout   time.Duration // 等待成交的硬超时（默认 10s）
	PollInterval  time.Duration // 成交轮询间隔（默认 1s）
	CancelTimeout time.Duration // 单次撤单/查单超时（默认 5s）

	// Epsilon 两腿成交量差的容忍度（默认 1e-9）
	Epsilon float64

	OrderType domain.OrderType

	// QuantityPrecision 数量小数位（向下截断，默认 8）
	QuantityPrecision int32
	MinQuantity       float64

	// InFlightTTL 同 symbol 执行锁的兜底过期时间（默认 FillTimeout 的 3 倍）
	InFlightTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.FillTimeout <= 0 {
		c.FillTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 5 * time.Second
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 1e-9
	}
	if c.OrderType == "" {
		c.OrderType = domain.OrderTypeLimit
	}
	if c.QuantityPrecision <= 0 {
		c.QuantityPrecision = 8
	}
	if c.InFlightTTL <= 0 {
		c.InFlightTTL = 3 * c.FillTimeout
	}
	if c.DefaultFXRate <= 0 {
		c.DefaultFXRate = 1
	}
	return c
}
