// Package broker relays venue events through RabbitMQ fanout exchanges so
// several engine instances can share one set of venue websockets.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/stream"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const defaultBuffer = 256

// Source consumes the relay exchanges. Every subscription gets its own
// channel and an exclusive auto-delete queue bound to the exchange.
type Source struct {
	cfg    config.RabbitMQConfig
	buffer int
	logger *logrus.Logger

	conn *amqp.Connection
	wg   sync.WaitGroup
}

var _ interfaces.EventSource = (*Source)(nil)

// NewSource dials the broker.
func NewSource(cfg config.RabbitMQConfig, buffer int, logger *logrus.Logger) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"component":    "broker_source",
		"ticks_ex":     cfg.PriceTicksExchange,
		"order_ex":     cfg.OrderEventsExchange,
		"prefetch":     cfg.Prefetch,
		"event_buffer": buffer,
	}).Info("rabbitmq source connected")
	return &Source{cfg: cfg, buffer: buffer, logger: logger, conn: conn}, nil
}

// SubscribePriceTicks consumes the tick exchange. The exchange carries every
// relayed symbol; consumers filter by symbol and interval.
func (s *Source) SubscribePriceTicks(ctx context.Context, symbol, interval string) (interfaces.Subscription[marketdata.PriceTick], error) {
	log := s.logger.WithFields(logrus.Fields{
		"component": "broker_source",
		"stream":    streamPriceTicks.String(),
		"symbol":    symbol,
		"interval":  interval,
	})
	return subscribe(ctx, s, streamPriceTicks, s.cfg.PriceTicksExchange, decodePriceTick, log)
}

func (s *Source) SubscribeOrderEvents(ctx context.Context) (interfaces.Subscription[trading.OrderEvent], error) {
	log := s.logger.WithFields(logrus.Fields{
		"component": "broker_source",
		"stream":    streamOrderEvents.String(),
	})
	return subscribe(ctx, s, streamOrderEvents, s.cfg.OrderEventsExchange, decodeOrderEvent, log)
}

// Close drops the connection, which ends every open subscription, and waits
// for the consume loops to exit.
func (s *Source) Close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.wg.Wait()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func subscribe[T any](ctx context.Context, s *Source, kind streamType, exchange string, decode func([]byte) (T, error), log *logrus.Entry) (*stream.Subscription[T], error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel for %s: %w", kind, err)
	}
	deliveries, err := declareAndConsume(ch, kind, exchange, s.cfg.Prefetch)
	if err != nil {
		ch.Close()
		return nil, err
	}

	sub := stream.New[T](s.buffer, func() error {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("close channel for %s: %w", kind, err)
		}
		return nil
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		consumeLoop(ctx, deliveries, sub, decode, log)
	}()
	log.Info("rabbitmq subscription started")
	return sub, nil
}

func declareAndConsume(ch *amqp.Channel, kind streamType, exchange string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue for %s: %w", kind, err)
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, exchange, err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos for %s: %w", kind, err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consume for %s: %w", kind, err)
	}
	return deliveries, nil
}

// consumeLoop acks a delivery once it is handed to the subscriber.
// Undecodable messages are dropped; a delivery that could not be handed over
// because the subscription closed is requeued for the next consumer.
func consumeLoop[T any](ctx context.Context, deliveries <-chan amqp.Delivery, sub *stream.Subscription[T], decode func([]byte) (T, error), log *logrus.Entry) {
	defer func() {
		if err := sub.Close(); err != nil {
			log.WithError(err).Warn("close subscription")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			ev, err := decode(delivery.Body)
			if err != nil {
				log.WithError(err).Warn("failed to process message")
				_ = delivery.Nack(false, false)
				continue
			}
			if !sub.Publish(ctx, ev) {
				_ = delivery.Nack(false, true)
				return
			}
			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

type streamType string

func (s streamType) String() string {
	return string(s)
}

const (
	streamPriceTicks  streamType = "price_ticks"
	streamOrderEvents streamType = "order_events"
)
