package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
)

// BaseMessage is the JSON envelope on every relay exchange. Exactly one
// field is set per message.
type BaseMessage struct {
	PriceTick  *marketdata.PriceTick `json:"price_tick,omitempty"`
	OrderEvent *trading.OrderEvent   `json:"order_event,omitempty"`
}

func decodePriceTick(body []byte) (marketdata.PriceTick, error) {
	var msg BaseMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return marketdata.PriceTick{}, fmt.Errorf("decode payload: %w", err)
	}
	if msg.PriceTick == nil {
		return marketdata.PriceTick{}, errors.New("price tick payload is nil")
	}
	if msg.PriceTick.Symbol == "" || !msg.PriceTick.Close.IsPositive() {
		return marketdata.PriceTick{}, fmt.Errorf("price tick payload is incomplete: %+v", *msg.PriceTick)
	}
	return *msg.PriceTick, nil
}

func decodeOrderEvent(body []byte) (trading.OrderEvent, error) {
	var msg BaseMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return trading.OrderEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	if msg.OrderEvent == nil {
		return trading.OrderEvent{}, errors.New("order event payload is nil")
	}
	if msg.OrderEvent.OrderID == "" {
		return trading.OrderEvent{}, errors.New("order event payload has no order id")
	}
	return *msg.OrderEvent, nil
}
