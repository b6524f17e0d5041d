package interfaces

import (
	"context"
	"net/http"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

// HTTPHandler is the operator API mounted by cmd/server.
type HTTPHandler interface {
	http.Handler
}

// TradeExecutor places bracket trades.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, req trading.TradeRequest) (*trading.TrackedOrderPair, error)
}

// PairLister exposes the OCO monitor's tracking table.
type PairLister interface {
	Pairs() []trading.TrackedOrderPair
}

// OrderLister lists resting venue orders.
type OrderLister interface {
	ListOpenOrders(ctx context.Context, symbol string) ([]trading.Order, error)
}

// MarketData is the read side of the market data service.
type MarketData interface {
	ListSymbols(ctx context.Context) ([]string, error)
	CurrentPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	HistoricalCandles(ctx context.Context, symbol, interval string, start, end *time.Time, limit int) ([]marketdata.Candle, error)
	StoredCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]marketdata.Candle, error)
	RecentTicks(ctx context.Context, symbol, interval string, limit int) ([]marketdata.PriceTick, error)
}
