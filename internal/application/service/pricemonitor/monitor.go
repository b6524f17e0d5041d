// Package pricemonitor feeds price ticks for one symbol and interval to a
// strategy callback.
package pricemonitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
)

// Strategy receives every tick for the monitored symbol. Errors are logged
// and counted; they never stop the monitor.
type Strategy interface {
	OnTick(ctx context.Context, tick marketdata.PriceTick) error
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(ctx context.Context, tick marketdata.PriceTick) error

func (f StrategyFunc) OnTick(ctx context.Context, tick marketdata.PriceTick) error {
	return f(ctx, tick)
}

// Chain calls every strategy in order. All of them see the tick even when an
// earlier one fails.
func Chain(strategies ...Strategy) Strategy {
	return StrategyFunc(func(ctx context.Context, tick marketdata.PriceTick) error {
		var errs []error
		for _, s := range strategies {
			if s == nil {
				continue
			}
			if err := s.OnTick(ctx, tick); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// LogTicks is the pass-through strategy: it only records what it saw.
func LogTicks(logger *logrus.Logger) Strategy {
	log := logger.WithField("component", "strategy")
	return StrategyFunc(func(_ context.Context, tick marketdata.PriceTick) error {
		log.WithFields(logrus.Fields{
			"symbol":   tick.Symbol,
			"interval": tick.Interval,
			"close":    tick.Close.String(),
			"final":    tick.Final,
		}).Debug("price tick")
		return nil
	})
}

type Monitor struct {
	source   interfaces.EventSource
	symbol   string
	interval string
	strategy Strategy
	logger   *logrus.Entry
}

func New(source interfaces.EventSource, symbol, interval string, strategy Strategy, logger *logrus.Logger) *Monitor {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return &Monitor{
		source:   source,
		symbol:   symbol,
		interval: interval,
		strategy: strategy,
		logger: logger.WithFields(logrus.Fields{
			"component": "price_monitor",
			"symbol":    symbol,
			"interval":  interval,
		}),
	}
}

// Run delivers ticks until ctx ends or the stream closes. It returns an error
// only when the subscription cannot be opened.
func (m *Monitor) Run(ctx context.Context) error {
	if m.strategy == nil {
		return errors.New("price monitor has no strategy")
	}
	sub, err := m.source.SubscribePriceTicks(ctx, m.symbol, m.interval)
	if err != nil {
		return fmt.Errorf("subscribe price ticks for %s@%s: %w", m.symbol, m.interval, err)
	}
	defer sub.Close()

	m.logger.Info("price monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("price monitor stopped")
			return nil
		case tick, ok := <-sub.Events():
			if !ok {
				m.logger.Info("price stream closed")
				return nil
			}
			if !m.accepts(tick) {
				continue
			}
			metrics.IncPriceTick(m.symbol)
			if err := m.deliver(ctx, tick); err != nil {
				metrics.IncStrategyFailure(m.symbol)
				m.logger.WithError(err).WithField("close", tick.Close.String()).Error("strategy failed on tick")
			}
		}
	}
}

// accepts drops ticks of other symbols and intervals, which shared relay
// streams deliver to every subscriber.
func (m *Monitor) accepts(tick marketdata.PriceTick) bool {
	if !strings.EqualFold(tick.Symbol, m.symbol) {
		return false
	}
	return m.interval == "" || tick.Interval == "" || tick.Interval == m.interval
}

func (m *Monitor) deliver(ctx context.Context, tick marketdata.PriceTick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("stack", string(debug.Stack())).Debug("strategy panic stack")
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return m.strategy.OnTick(ctx, tick)
}
