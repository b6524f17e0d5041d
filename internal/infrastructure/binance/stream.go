package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/stream"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/sirupsen/logrus"
)

const (
	defaultStreamBuffer = 256
	listenKeyCloseWait  = 5 * time.Second
)

// StreamSource serves price ticks from the kline websocket and order events
// from the user-data websocket.
type StreamSource struct {
	client    *futures.Client
	buffer    int
	keepAlive time.Duration
	logger    *logrus.Entry
}

var _ interfaces.EventSource = (*StreamSource)(nil)

func NewStreamSource(client *futures.Client, buffer int, keepAlive time.Duration, logger *logrus.Logger) *StreamSource {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	if keepAlive <= 0 {
		keepAlive = 30 * time.Minute
	}
	return &StreamSource{
		client:    client,
		buffer:    buffer,
		keepAlive: keepAlive,
		logger:    logger.WithField("component", "binance_stream"),
	}
}

func (s *StreamSource) SubscribePriceTicks(ctx context.Context, symbol, interval string) (interfaces.Subscription[marketdata.PriceTick], error) {
	log := s.logger.WithFields(logrus.Fields{"stream": "kline", "symbol": symbol, "interval": interval})

	stopper := &wsStopper{}
	sub := stream.New[marketdata.PriceTick](s.buffer, func() error {
		stopper.stop()
		return nil
	})

	handler := func(ev *futures.WsKlineEvent) {
		tick, err := TickFromKline(ev)
		if err != nil {
			log.WithError(err).Warn("skip kline event")
			return
		}
		sub.Publish(ctx, tick)
	}
	errHandler := func(err error) {
		log.WithError(err).Warn("kline websocket error")
	}

	doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("kline websocket %s@%s: %w", symbol, interval, err)
	}
	stopper.set(stopC)
	go closeWhenDone(ctx, sub, doneC, log)

	log.Info("kline websocket connected")
	return sub, nil
}

// SubscribeOrderEvents opens a user-data stream. The listen key is kept
// alive while the subscription is open and released on Close.
func (s *StreamSource) SubscribeOrderEvents(ctx context.Context) (interfaces.Subscription[trading.OrderEvent], error) {
	log := s.logger.WithField("stream", "user_data")

	listenKey, err := s.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("start user stream: %w", err)
	}

	stopper := &wsStopper{}
	sub := stream.New[trading.OrderEvent](s.buffer, func() error {
		stopper.stop()
		closeCtx, cancel := context.WithTimeout(context.Background(), listenKeyCloseWait)
		defer cancel()
		if err := s.client.NewCloseUserStreamService().ListenKey(listenKey).Do(closeCtx); err != nil {
			return fmt.Errorf("close user stream: %w", err)
		}
		return nil
	})

	handler := func(ev *futures.WsUserDataEvent) {
		orderEvent, ok := OrderEventFromUserData(ev)
		if !ok {
			return
		}
		sub.Publish(ctx, orderEvent)
	}
	errHandler := func(err error) {
		log.WithError(err).Warn("user data websocket error")
	}

	doneC, stopC, err := futures.WsUserDataServe(listenKey, handler, errHandler)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("user data websocket: %w", err)
	}
	stopper.set(stopC)
	go s.keepListenKeyAlive(ctx, sub, listenKey, log)
	go closeWhenDone(ctx, sub, doneC, log)

	log.Info("user data websocket connected")
	return sub, nil
}

func (s *StreamSource) keepListenKeyAlive(ctx context.Context, sub *stream.Subscription[trading.OrderEvent], listenKey string, log *logrus.Entry) {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := s.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				log.WithError(err).Warn("listen key keepalive failed")
			}
		}
	}
}

// closeWhenDone ends sub when the socket drops or ctx ends.
func closeWhenDone[T any](ctx context.Context, sub *stream.Subscription[T], doneC <-chan struct{}, log *logrus.Entry) {
	select {
	case <-doneC:
		log.Warn("websocket closed by venue")
	case <-ctx.Done():
	case <-sub.Done():
	}
	if err := sub.Close(); err != nil {
		log.WithError(err).Warn("close subscription")
	}
}

// wsStopper closes the library's stop channel at most once.
type wsStopper struct {
	mu     sync.Mutex
	stopC  chan struct{}
	closed bool
}

func (w *wsStopper) set(stopC chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		close(stopC)
		return
	}
	w.stopC = stopC
}

func (w *wsStopper) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.stopC != nil {
		close(w.stopC)
	}
}
