package marketdata

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candle is one OHLCV kline for a symbol and interval (e.g. "5m").
type Candle struct {
	ID        uuid.UUID       `json:"id" swaggertype:"string"`
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open" swaggertype:"string"`
	High      decimal.Decimal `json:"high" swaggertype:"string"`
	Low       decimal.Decimal `json:"low" swaggertype:"string"`
	Close     decimal.Decimal `json:"close" swaggertype:"string"`
	Volume    decimal.Decimal `json:"volume" swaggertype:"string"`
}
