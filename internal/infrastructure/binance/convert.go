package binance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Venue error codes that mean the order can no longer be cancelled.
const (
	codeCancelRejected = -2011 // CANCEL_REJECTED / Unknown order sent
	codeNoSuchOrder    = -2013 // Order does not exist
)

func sideToBinance(side trading.OrderSide) futures.SideType {
	if side == trading.OrderSideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func sideFromBinance(side futures.SideType) trading.OrderSide {
	if side == futures.SideTypeSell {
		return trading.OrderSideSell
	}
	return trading.OrderSideBuy
}

func stopOrderType(kind trading.StopKind) (futures.OrderType, error) {
	switch kind {
	case trading.StopKindStopLoss:
		return futures.OrderTypeStopMarket, nil
	case trading.StopKindTakeProfit:
		return futures.OrderTypeTakeProfitMarket, nil
	default:
		return "", fmt.Errorf("%w: unknown stop kind %q", trading.ErrInvalidInput, kind)
	}
}

func statusFromBinance(status futures.OrderStatusType) trading.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return trading.OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return trading.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return trading.OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return trading.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return trading.OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return trading.OrderStatusExpired
	default:
		return trading.OrderStatus(status)
	}
}

func formatOrderID(id int64) trading.OrderID {
	return trading.OrderID(strconv.FormatInt(id, 10))
}

func parseOrderID(id trading.OrderID) (int64, error) {
	parsed, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: order id %q is not numeric", trading.ErrInvalidInput, id)
	}
	return parsed, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func orderFromBinance(o *futures.Order) (trading.Order, error) {
	if o == nil {
		return trading.Order{}, errors.New("order is nil")
	}
	qty, err := parseDecimal("quantity", o.OrigQuantity)
	if err != nil {
		return trading.Order{}, err
	}
	price, err := parseDecimal("price", o.Price)
	if err != nil {
		return trading.Order{}, err
	}
	stop, err := parseDecimal("stop price", o.StopPrice)
	if err != nil {
		return trading.Order{}, err
	}
	return trading.Order{
		ID:            formatOrderID(o.OrderID),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          sideFromBinance(o.Side),
		Type:          string(o.Type),
		Status:        statusFromBinance(o.Status),
		Quantity:      qty,
		Price:         price,
		StopPrice:     stop,
		UpdatedAt:     fromMillis(o.UpdateTime),
	}, nil
}

func candleFromKline(symbol, interval string, k *futures.Kline) (marketdata.Candle, error) {
	if k == nil {
		return marketdata.Candle{}, errors.New("kline is nil")
	}
	candle := marketdata.Candle{
		ID:        uuid.New(),
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  fromMillis(k.OpenTime),
		CloseTime: fromMillis(k.CloseTime),
	}
	var err error
	if candle.Open, err = parseDecimal("open", k.Open); err != nil {
		return marketdata.Candle{}, err
	}
	if candle.High, err = parseDecimal("high", k.High); err != nil {
		return marketdata.Candle{}, err
	}
	if candle.Low, err = parseDecimal("low", k.Low); err != nil {
		return marketdata.Candle{}, err
	}
	if candle.Close, err = parseDecimal("close", k.Close); err != nil {
		return marketdata.Candle{}, err
	}
	if candle.Volume, err = parseDecimal("volume", k.Volume); err != nil {
		return marketdata.Candle{}, err
	}
	return candle, nil
}

// TickFromKline reduces a kline push to its close price.
func TickFromKline(ev *futures.WsKlineEvent) (marketdata.PriceTick, error) {
	if ev == nil {
		return marketdata.PriceTick{}, errors.New("kline event is nil")
	}
	closePrice, err := parseDecimal("close", ev.Kline.Close)
	if err != nil {
		return marketdata.PriceTick{}, err
	}
	if !closePrice.IsPositive() {
		return marketdata.PriceTick{}, fmt.Errorf("kline close for %s is not positive: %q", ev.Symbol, ev.Kline.Close)
	}
	symbol := ev.Symbol
	if symbol == "" {
		symbol = ev.Kline.Symbol
	}
	return marketdata.PriceTick{
		Symbol:    symbol,
		Interval:  ev.Kline.Interval,
		Close:     closePrice,
		Timestamp: fromMillis(ev.Time),
		Final:     ev.Kline.IsFinal,
	}, nil
}

// OrderEventFromUserData extracts the order update from a user-data push.
// ok is false for every other event type.
func OrderEventFromUserData(ev *futures.WsUserDataEvent) (trading.OrderEvent, bool) {
	if ev == nil || ev.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return trading.OrderEvent{}, false
	}
	u := ev.OrderTradeUpdate
	ts := u.TradeTime
	if ts == 0 {
		ts = ev.Time
	}
	return trading.OrderEvent{
		OrderID:   formatOrderID(u.ID),
		Symbol:    u.Symbol,
		Side:      sideFromBinance(u.Side),
		Status:    statusFromBinance(u.Status),
		Timestamp: fromMillis(ts),
	}, true
}

// isTerminalOrderError reports venue rejections that mean the order already
// left the book.
func isTerminalOrderError(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeCancelRejected || apiErr.Code == codeNoSuchOrder
}
