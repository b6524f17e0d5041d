// Package oco keeps the exit legs of every bracket mutually exclusive: when
// one leg fills, the other is cancelled exactly once.
package oco

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
)

const (
	defaultDrainTimeout     = 10 * time.Second
	defaultCancelRetryDelay = 500 * time.Millisecond
	defaultEarlyEventTTL    = time.Minute
	defaultEarlyEventLimit  = 1024

	// cancelAttempts is the first try plus a single retry.
	cancelAttempts = 2
)

// Canceler is the slice of the order gateway the monitor needs.
type Canceler interface {
	CancelOrder(ctx context.Context, symbol string, id trading.OrderID) error
}

// Config tunes the monitor. Zero values fall back to defaults.
type Config struct {
	DrainTimeout     time.Duration
	CancelRetryDelay time.Duration
	EarlyEventTTL    time.Duration
	EarlyEventLimit  int
}

// Monitor owns the tracking table of active pairs.
type Monitor struct {
	canceler Canceler
	source   interfaces.EventSource
	cfg      Config
	logger   *logrus.Entry
	now      func() time.Time

	table    *table
	inflight sync.WaitGroup
}

// NewMonitor builds a monitor. source may be nil when events are fed through
// HandleEvent directly.
func NewMonitor(canceler Canceler, source interfaces.EventSource, cfg Config, logger *logrus.Logger) *Monitor {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.CancelRetryDelay <= 0 {
		cfg.CancelRetryDelay = defaultCancelRetryDelay
	}
	if cfg.EarlyEventTTL <= 0 {
		cfg.EarlyEventTTL = defaultEarlyEventTTL
	}
	if cfg.EarlyEventLimit == 0 {
		cfg.EarlyEventLimit = defaultEarlyEventLimit
	}
	now := time.Now
	return &Monitor{
		canceler: canceler,
		source:   source,
		cfg:      cfg,
		logger:   logger.WithField("component", "oco_monitor"),
		now:      now,
		table:    newTable(cfg.EarlyEventTTL, cfg.EarlyEventLimit, now),
	}
}

// Register starts tracking pair. Terminal events that arrived for its ids
// before registration are applied immediately.
func (m *Monitor) Register(ctx context.Context, pair trading.TrackedOrderPair) error {
	if err := validatePair(pair); err != nil {
		return err
	}
	if pair.Status == "" {
		pair.Status = trading.PairStatusPending
	}
	if !pair.Status.IsActive() {
		return fmt.Errorf("%w: pair for entry %s on %s is %s", trading.ErrInvalidInput, pair.EntryOrderID, pair.Symbol, pair.Status)
	}
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = m.now().UTC()
	}

	tp, replay, err := m.table.insert(pair)
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"symbol":      pair.Symbol,
		"entry_id":    pair.EntryOrderID,
		"stop_loss":   pair.StopLossOrderID,
		"take_profit": pair.TakeProfitOrderID,
	}).Info("tracking bracket pair")

	for _, ev := range replay {
		m.logger.WithFields(eventFields(ev)).Info("replaying event received before registration")
		if err := m.transition(ctx, tp, ev); err != nil {
			m.logger.WithError(err).WithFields(eventFields(ev)).Error("replayed event failed")
		}
	}
	return nil
}

// HandleEvent applies one order event to the tracking table. Events for
// unknown orders and for pairs that are already resolved are ignored.
func (m *Monitor) HandleEvent(ctx context.Context, ev trading.OrderEvent) error {
	tp := m.table.lookupOrRemember(ev)
	if tp == nil {
		m.logger.WithFields(eventFields(ev)).Debug("ignoring event for untracked order")
		return nil
	}
	return m.transition(ctx, tp, ev)
}

// Pairs returns a snapshot of the active pairs, oldest first.
func (m *Monitor) Pairs() []trading.TrackedOrderPair {
	return m.table.snapshot()
}

// Len is the number of active pairs.
func (m *Monitor) Len() int {
	return m.table.len()
}

func (m *Monitor) transition(ctx context.Context, tp *trackedPair, ev trading.OrderEvent) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.pair.Status.IsActive() {
		return nil
	}

	if ev.OrderID == tp.pair.EntryOrderID {
		m.onEntryEvent(tp, ev)
		return nil
	}

	sibling, ok := tp.pair.Sibling(ev.OrderID)
	if !ok {
		return nil
	}

	switch ev.Status {
	case trading.OrderStatusFilled:
		tp.terminal[ev.OrderID] = trading.OrderStatusFilled
		if _, done := tp.terminal[sibling]; !done {
			if err := m.cancelSibling(ctx, tp, ev.OrderID, sibling); err != nil {
				return err
			}
			tp.terminal[sibling] = trading.OrderStatusCanceled
		}
		m.resolve(tp, tp.pair.LegName(ev.OrderID))
	case trading.OrderStatusCanceled, trading.OrderStatusRejected, trading.OrderStatusExpired:
		tp.terminal[ev.OrderID] = ev.Status
		if _, done := tp.terminal[sibling]; done {
			m.resolve(tp, "both_terminal")
			return nil
		}
		m.logger.WithFields(eventFields(ev)).WithField("sibling", sibling).
			Warn("exit leg ended without a fill; sibling is still live")
	}
	return nil
}

func (m *Monitor) onEntryEvent(tp *trackedPair, ev trading.OrderEvent) {
	switch ev.Status {
	case trading.OrderStatusFilled:
		if tp.pair.Status == trading.PairStatusPending {
			tp.pair.Status = trading.PairStatusEntryFilled
			tp.publish()
			m.logger.WithFields(eventFields(ev)).Info("entry order filled")
		}
	case trading.OrderStatusCanceled, trading.OrderStatusRejected, trading.OrderStatusExpired:
		m.logger.WithFields(eventFields(ev)).
			Error("entry order ended without a fill while exit legs are live; manual reconciliation required")
	}
}

// cancelSibling cancels the untriggered leg. A cancel that fails because the
// order is already terminal counts as success; anything else is retried once.
func (m *Monitor) cancelSibling(ctx context.Context, tp *trackedPair, filled, sibling trading.OrderID) error {
	symbol := tp.pair.Symbol
	log := m.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"filled_id": filled,
		"filled":    tp.pair.LegName(filled),
		"cancel_id": sibling,
	})

	var (
		err  error
		sent int
	)
	for sent < cancelAttempts {
		err = m.canceler.CancelOrder(ctx, symbol, sibling)
		sent++
		if err == nil {
			log.Info("cancelled sibling leg")
			return nil
		}
		if errors.Is(err, trading.ErrOrderTerminal) {
			log.WithError(err).Info("sibling leg already terminal")
			return nil
		}
		if sent == cancelAttempts {
			break
		}
		log.WithError(err).Warn("cancel of sibling leg failed, retrying once")
		if waitErr := sleepCtx(ctx, m.cfg.CancelRetryDelay); waitErr != nil {
			err = errors.Join(err, waitErr)
			break
		}
	}

	metrics.IncOCOCancelError()
	return &trading.CancelError{
		Symbol:        symbol,
		FilledOrderID: filled,
		CancelOrderID: sibling,
		Attempts:      sent,
		Err:           err,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve must be called with tp.mu held.
func (m *Monitor) resolve(tp *trackedPair, leg string) {
	resolvedAt := m.now().UTC()
	tp.pair.Status = trading.PairStatusResolved
	tp.pair.ResolvedAt = &resolvedAt
	tp.publish()
	m.table.remove(tp)
	metrics.IncOCOResolution(leg)

	m.logger.WithFields(logrus.Fields{
		"symbol":   tp.pair.Symbol,
		"entry_id": tp.pair.EntryOrderID,
		"leg":      leg,
	}).Info("bracket pair resolved")
}

// Run consumes order events until ctx ends or the stream closes, then waits
// up to DrainTimeout for in-flight transitions.
func (m *Monitor) Run(ctx context.Context) error {
	if m.source == nil {
		return errors.New("oco monitor has no event source")
	}
	sub, err := m.source.SubscribeOrderEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe order events: %w", err)
	}
	defer sub.Close()

	// In-flight transitions outlive ctx so a cancel already on the wire can
	// finish; drain cuts them off once the timeout passes.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	m.logger.Info("oco monitor started")
	for {
		select {
		case <-ctx.Done():
			return m.drain(cancelWork)
		case ev, ok := <-sub.Events():
			if !ok {
				m.logger.Warn("order event stream closed")
				return m.drain(cancelWork)
			}
			m.dispatch(workCtx, ev)
		}
	}
}

// dispatch runs each tracked event on its own goroutine so a stalled cancel
// holds up only its own pair.
func (m *Monitor) dispatch(ctx context.Context, ev trading.OrderEvent) {
	tp := m.table.lookupOrRemember(ev)
	if tp == nil {
		return
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := m.transition(ctx, tp, ev); err != nil {
			m.logger.WithError(err).WithFields(eventFields(ev)).Error("failed to resolve bracket pair")
		}
	}()
}

func (m *Monitor) drain(cancelWork context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(m.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		m.logger.WithField("active_pairs", m.Len()).Info("oco monitor stopped")
		return nil
	case <-timer.C:
		cancelWork()
		m.logger.WithField("timeout", m.cfg.DrainTimeout.String()).Error("oco monitor drain timed out")
		return fmt.Errorf("oco monitor: %w", trading.ErrDrainTimeout)
	}
}

func validatePair(p trading.TrackedOrderPair) error {
	var missing []string
	if strings.TrimSpace(p.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if p.EntryOrderID == "" {
		missing = append(missing, "entry order id")
	}
	if p.StopLossOrderID == "" {
		missing = append(missing, "stop-loss order id")
	}
	if p.TakeProfitOrderID == "" {
		missing = append(missing, "take-profit order id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: pair is missing %s", trading.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if p.EntryOrderID == p.StopLossOrderID || p.EntryOrderID == p.TakeProfitOrderID || p.StopLossOrderID == p.TakeProfitOrderID {
		return fmt.Errorf("%w: pair on %s reuses an order id", trading.ErrInvalidInput, p.Symbol)
	}
	return nil
}

func eventFields(ev trading.OrderEvent) logrus.Fields {
	return logrus.Fields{
		"symbol":   ev.Symbol,
		"order_id": ev.OrderID,
		"status":   ev.Status,
	}
}
