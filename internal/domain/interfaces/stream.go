package interfaces

import (
	"context"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
)

// Subscription is a live, non-restartable event sequence. Events is closed
// once the subscription ends, either through Close or because the
// underlying feed went away.
type Subscription[T any] interface {
	Events() <-chan T
	Close() error
}

// EventSource hands out subscriptions to the venue's push feeds.
type EventSource interface {
	SubscribePriceTicks(ctx context.Context, symbol, interval string) (Subscription[marketdata.PriceTick], error)
	SubscribeOrderEvents(ctx context.Context) (Subscription[trading.OrderEvent], error)
}
