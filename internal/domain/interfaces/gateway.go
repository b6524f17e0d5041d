package interfaces

import (
	"context"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

// OrderGateway is the request/response surface of the venue.
//
// CancelOrder must wrap trading.ErrOrderTerminal when the order is already
// filled or canceled so callers can treat the race as benign.
type OrderGateway interface {
	ListSymbols(ctx context.Context) ([]string, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetHistoricalCandles(ctx context.Context, query CandleQuery) ([]marketdata.Candle, error)
	SubmitMarketOrder(ctx context.Context, order MarketOrder) (trading.OrderID, error)
	SubmitStopOrder(ctx context.Context, order StopOrder) (trading.OrderID, error)
	CancelOrder(ctx context.Context, symbol string, id trading.OrderID) error
	ListOpenOrders(ctx context.Context, symbol string) ([]trading.Order, error)
}

// CandleQuery selects historical klines. Start and End are optional.
type CandleQuery struct {
	Symbol   string
	Interval string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

type MarketOrder struct {
	Symbol        string
	Side          trading.OrderSide
	Quantity      decimal.Decimal
	ClientOrderID string
}

type StopOrder struct {
	Symbol        string
	Side          trading.OrderSide
	Quantity      decimal.Decimal
	TriggerPrice  decimal.Decimal
	Kind          trading.StopKind
	ClientOrderID string
}
