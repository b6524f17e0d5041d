package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is a streamed kline update reduced to its close price.
// Final is set on the last update of the kline, once the candle closed.
type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	Close     decimal.Decimal `json:"close" swaggertype:"string"`
	Timestamp time.Time       `json:"timestamp"`
	Final     bool            `json:"final"`
}
