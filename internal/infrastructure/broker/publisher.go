package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// channelPublisher is the part of *amqp.Channel the publisher needs.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher writes relay messages to the fanout exchanges.
type Publisher struct {
	channel     channelPublisher
	ticksEx     string
	orderEvents string
	logger      *logrus.Entry
	mu          sync.Mutex
}

func NewPublisher(conn *amqp.Connection, cfg config.RabbitMQConfig, logger *logrus.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	declared := map[string]struct{}{}
	for _, name := range []string{cfg.PriceTicksExchange, cfg.OrderEventsExchange} {
		if name == "" {
			ch.Close()
			return nil, errors.New("exchange name cannot be empty")
		}
		if _, ok := declared[name]; ok {
			continue
		}
		if err := ch.ExchangeDeclare(name, "fanout", true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", name, err)
		}
		declared[name] = struct{}{}
	}

	return newPublisher(ch, cfg, logger), nil
}

func newPublisher(ch channelPublisher, cfg config.RabbitMQConfig, logger *logrus.Logger) *Publisher {
	return &Publisher{
		channel:     ch,
		ticksEx:     cfg.PriceTicksExchange,
		orderEvents: cfg.OrderEventsExchange,
		logger:      logger.WithField("component", "broker_publisher"),
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.WithError(err).Error("close rabbitmq channel")
	}
}

func (p *Publisher) PublishTick(ctx context.Context, tick marketdata.PriceTick) error {
	return p.publish(ctx, p.ticksEx, BaseMessage{PriceTick: &tick})
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, ev trading.OrderEvent) error {
	return p.publish(ctx, p.orderEvents, BaseMessage{OrderEvent: &ev})
}

func (p *Publisher) publish(ctx context.Context, exchange string, payload BaseMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", exchange, err)
	}
	return nil
}
