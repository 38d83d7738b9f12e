package venue

import "context"

// TradingAPI is one account's authenticated session with the venue.
type TradingAPI interface {
	GetMarkets(ctx context.Context) ([]Market, error)
	GetPositions(ctx context.Context, market string) ([]Position, error)
	GetOrders(ctx context.Context, limit int) ([]Order, error)
	GetOrderBookLevel2(ctx context.Context, market string, limit int) (OrderBook, error)
	CreateOrder(ctx context.Context, spec OrderSpec) (Order, error)
	// CancelOrders cancels open orders for market, or all markets when
	// market is empty.
	CancelOrders(ctx context.Context, market string) ([]CancelledOrder, error)
	Wallet() string
}
