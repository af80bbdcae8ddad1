package ports

import (
	"context"

	"github.com/betbot/spreadarb/internal/domain"
)

// Small capability interfaces shared across layers (risk/execution/orchestrator).
// 交易所适配器在本模块之外实现，这里只约定边界。

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

type OrderCanceler interface {
	// CancelOrder returns true when the venue acknowledged the cancel.
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
}

type OrderStatusGetter interface {
	GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.OrderResult, error)
}

// Venue 单个交易所的交易端口
type Venue interface {
	OrderPlacer
	OrderCanceler
	OrderStatusGetter
	ID() string
	// HasCredentials 交易密钥是否已配置
	HasCredentials() bool
}

type BalanceFetcher interface {
	// GetBalances returns (base, quote) balances for the asset pair behind symbol.
	GetBalances(ctx context.Context, symbol string) (base float64, quote float64, err error)
}
