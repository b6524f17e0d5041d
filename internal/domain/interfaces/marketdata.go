package interfaces

import (
	"context"
	"time"

	marketdata "bracket-engine/internal/domain/entity/marketdata"
)

type MarketDataRepository interface {
	AddCandles(ctx context.Context, candles []marketdata.Candle) error
	GetCandlesBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]marketdata.Candle, error)
	GetLastCandles(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Candle, error)

	AddPriceTicks(ctx context.Context, ticks []marketdata.PriceTick) error
	GetLastPriceTicks(ctx context.Context, symbol, interval string, limit int) ([]marketdata.PriceTick, error)

	Close()
}
