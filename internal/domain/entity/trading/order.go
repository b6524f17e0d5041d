package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of the position a bracket trade opens.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func (s Side) String() string {
	return string(s)
}

func (s Side) IsValid() bool {
	switch s {
	case SideLong, SideShort:
		return true
	default:
		return false
	}
}

// EntrySide is the venue order side that opens the position.
func (s Side) EntrySide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide is the venue order side of the protective legs.
func (s Side) ExitSide() OrderSide {
	return s.EntrySide().Opposite()
}

// ParseSide accepts LONG/SHORT as well as the BUY/SELL spelling used by the venue.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BUY":
		return SideLong, nil
	case "SHORT", "SELL":
		return SideShort, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, raw)
	}
}

// OrderSide is the BUY/SELL direction of a single venue order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) String() string {
	return string(s)
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// StopKind tells the gateway which trigger order type to use for an exit leg.
type StopKind string

const (
	StopKindStopLoss   StopKind = "STOP_LOSS"
	StopKindTakeProfit StopKind = "TAKE_PROFIT"
)

func (k StopKind) String() string {
	return string(k)
}

// OrderID is the venue order identifier rendered as a string.
type OrderID string

func (id OrderID) String() string {
	return string(id)
}

// OrderStatus mirrors the venue order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Order is an open order as listed by the venue.
type Order struct {
	ID            OrderID         `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          string          `json:"type"`
	Status        OrderStatus     `json:"status"`
	Quantity      decimal.Decimal `json:"quantity" swaggertype:"string"`
	Price         decimal.Decimal `json:"price" swaggertype:"string"`
	StopPrice     decimal.Decimal `json:"stop_price" swaggertype:"string"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderEvent is an order-state change pushed by the venue.
type OrderEvent struct {
	OrderID   OrderID     `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}
