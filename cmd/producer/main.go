package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/binance"
	"bracket-engine/internal/infrastructure/broker"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	bootLogger := logrus.New()
	bootLogger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatalf("config error: %v", err)
	}
	logger := cfg.NewLogger()
	if err := cfg.Binance.RequireCredentials(); err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rabbitConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("connect rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	pub, err := broker.NewPublisher(rabbitConn, cfg.RabbitMQ, logger)
	if err != nil {
		logger.Fatalf("init publisher: %v", err)
	}
	defer pub.Close()

	client := binance.NewClient(cfg.Binance)
	source := binance.NewStreamSource(client, cfg.Events.Buffer, cfg.Events.ListenKeyKeepAlive, logger)

	g, gctx := errgroup.WithContext(ctx)

	orders, err := source.SubscribeOrderEvents(gctx)
	if err != nil {
		logger.Fatalf("subscribe order events: %v", err)
	}
	defer orders.Close()
	g.Go(func() error {
		return pump(gctx, "order_events", orders, pub.PublishOrderEvent, logger)
	})

	for _, symbol := range cfg.Relay.Symbols {
		ticks, err := source.SubscribePriceTicks(gctx, symbol, cfg.Relay.Interval)
		if err != nil {
			logger.Fatalf("subscribe klines %s: %v", symbol, err)
		}
		defer ticks.Close()
		g.Go(func() error {
			return pump(gctx, "price_ticks:"+symbol, ticks, pub.PublishTick, logger)
		})
	}

	logger.WithFields(logrus.Fields{
		"symbols":  cfg.Relay.Symbols,
		"interval": cfg.Relay.Interval,
		"ticks_ex": cfg.RabbitMQ.PriceTicksExchange,
		"order_ex": cfg.RabbitMQ.OrderEventsExchange,
	}).Info("producer started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("producer stopped with error: %v", err)
		return
	}

	logger.Info("producer stopped")
}

// pump forwards one subscription to the broker. A closed subscription is an
// error: the websocket went away and the relay must be restarted.
func pump[T any](ctx context.Context, name string, sub interfaces.Subscription[T], publish func(context.Context, T) error, logger *logrus.Logger) error {
	log := logger.WithField("stream", name)
	var relayed int
	for {
		select {
		case <-ctx.Done():
			log.WithField("relayed", relayed).Info("relay stopped")
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("%s: subscription closed after %d events", name, relayed)
			}
			if err := publish(ctx, ev); err != nil {
				return fmt.Errorf("publish %s: %w", name, err)
			}
			relayed++
		}
	}
}
