// Package execution places bracket trades: a market entry followed by a
// stop-loss and a take-profit leg, handed to the OCO monitor once live.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bracket-engine/internal/application/service/bracket"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Registrar takes ownership of a live pair. Implemented by the OCO monitor.
type Registrar interface {
	Register(ctx context.Context, pair trading.TrackedOrderPair) error
}

// protectTimeout bounds exit-leg placement and registration once the entry
// is live. These run detached from the caller's context: a client going away
// must not leave an open position without its bracket.
const protectTimeout = 30 * time.Second

type Executor struct {
	gateway   interfaces.OrderGateway
	registrar Registrar
	logger    *logrus.Entry

	newClientID    func() string
	now            func() time.Time
	protectTimeout time.Duration
}

func NewExecutor(gateway interfaces.OrderGateway, registrar Registrar, logger *logrus.Logger) *Executor {
	return &Executor{
		gateway:        gateway,
		registrar:      registrar,
		logger:         logger.WithField("component", "executor"),
		newClientID:    uuid.NewString,
		now:            time.Now,
		protectTimeout: protectTimeout,
	}
}

// ExecuteTrade opens the position described by req and protects it with a
// bracket. The entry is never followed by exit orders if it fails; a failed
// exit leg after a successful entry yields *trading.PartialBracketError.
func (e *Executor) ExecuteTrade(ctx context.Context, req trading.TradeRequest) (*trading.TrackedOrderPair, error) {
	if err := validateRequest(req); err != nil {
		metrics.IncTrade("rejected")
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	log := e.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"side":   req.Side,
		"qty":    req.Quantity.String(),
	})

	entry, err := e.entryPrice(ctx, symbol, req.EntryPrice)
	if err != nil {
		metrics.IncTrade("failed")
		return nil, err
	}

	levels, err := bracket.ComputeLevels(entry, req.StopLossPct, req.TakeProfitPct, req.Side)
	if err != nil {
		metrics.IncTrade("rejected")
		return nil, err
	}
	log = log.WithFields(logrus.Fields{
		"entry":       levels.Entry.String(),
		"stop_loss":   levels.StopLoss.String(),
		"take_profit": levels.TakeProfit.String(),
	})

	entryClientID := e.newClientID()
	entryID, err := e.gateway.SubmitMarketOrder(ctx, interfaces.MarketOrder{
		Symbol:        symbol,
		Side:          req.Side.EntrySide(),
		Quantity:      req.Quantity,
		ClientOrderID: entryClientID,
	})
	metrics.IncOrderSubmitted("entry", req.Side.EntrySide().String(), err == nil)
	if err != nil {
		metrics.IncTrade("failed")
		log.WithError(err).Warn("entry order rejected")
		return nil, fmt.Errorf("%w: submit entry order for %s: %w", trading.ErrGateway, symbol, err)
	}
	log = log.WithField("entry_id", entryID)
	log.Info("entry order placed")

	protectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.protectTimeout)
	defer cancel()

	legs := []struct {
		kind     trading.StopKind
		trigger  decimal.Decimal
		clientID string
	}{
		{trading.StopKindStopLoss, levels.StopLoss, e.newClientID()},
		{trading.StopKindTakeProfit, levels.TakeProfit, e.newClientID()},
	}
	placed := make(map[trading.StopKind]trading.OrderID, len(legs))
	failed := make(map[trading.StopKind]error)
	exitSide := req.Side.ExitSide()
	for _, leg := range legs {
		id, err := e.gateway.SubmitStopOrder(protectCtx, interfaces.StopOrder{
			Symbol:        symbol,
			Side:          exitSide,
			Quantity:      req.Quantity,
			TriggerPrice:  leg.trigger,
			Kind:          leg.kind,
			ClientOrderID: leg.clientID,
		})
		metrics.IncOrderSubmitted(metricKind(leg.kind), exitSide.String(), err == nil)
		if err != nil {
			failed[leg.kind] = err
			continue
		}
		placed[leg.kind] = id
	}

	if len(failed) > 0 {
		metrics.IncTrade("partial")
		perr := &trading.PartialBracketError{
			Symbol:       symbol,
			EntryOrderID: entryID,
			PlacedLegs:   placed,
			FailedLegs:   failed,
		}
		log.WithError(perr).Error("bracket incomplete, position needs manual remediation")
		return nil, perr
	}

	pair := trading.TrackedOrderPair{
		EntryOrderID:      entryID,
		StopLossOrderID:   placed[trading.StopKindStopLoss],
		TakeProfitOrderID: placed[trading.StopKindTakeProfit],
		Symbol:            symbol,
		Side:              req.Side,
		Quantity:          req.Quantity,
		Levels:            levels,
		Status:            trading.PairStatusPending,
		ClientOrderIDs:    []string{entryClientID, legs[0].clientID, legs[1].clientID},
		CreatedAt:         e.now().UTC(),
	}
	if err := e.registrar.Register(protectCtx, pair); err != nil {
		metrics.IncTrade("unregistered")
		log.WithError(err).Error("bracket placed but not tracked")
		return &pair, fmt.Errorf("register bracket for entry %s: %w", entryID, err)
	}

	metrics.IncTrade("ok")
	log.WithFields(logrus.Fields{
		"stop_loss_id":   pair.StopLossOrderID,
		"take_profit_id": pair.TakeProfitOrderID,
	}).Info("bracket placed")
	return &pair, nil
}

func (e *Executor) entryPrice(ctx context.Context, symbol string, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}
	price, err := e.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", trading.ErrPriceUnavailable, symbol, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s quoted at %s", trading.ErrPriceUnavailable, symbol, price)
	}
	return price, nil
}

func validateRequest(req trading.TradeRequest) error {
	if !req.Side.IsValid() {
		return fmt.Errorf("%w: %q", trading.ErrInvalidSide, req.Side)
	}
	var problems []string
	if strings.TrimSpace(req.Symbol) == "" {
		problems = append(problems, "symbol is required")
	}
	if !req.Quantity.IsPositive() {
		problems = append(problems, fmt.Sprintf("quantity must be positive, got %s", req.Quantity))
	}
	if req.EntryPrice != nil && !req.EntryPrice.IsPositive() {
		problems = append(problems, fmt.Sprintf("entry price must be positive, got %s", req.EntryPrice))
	}
	if req.StopLossPct.IsNegative() {
		problems = append(problems, fmt.Sprintf("stop-loss pct must be >= 0, got %s", req.StopLossPct))
	}
	if req.TakeProfitPct.IsNegative() {
		problems = append(problems, fmt.Sprintf("take-profit pct must be >= 0, got %s", req.TakeProfitPct))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", trading.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func metricKind(kind trading.StopKind) string {
	if kind == trading.StopKindTakeProfit {
		return "take_profit"
	}
	return "stop_loss"
}

// IsClientError reports whether err was caused by the request itself rather
// than the venue.
func IsClientError(err error) bool {
	return errors.Is(err, trading.ErrInvalidInput) || errors.Is(err, trading.ErrInvalidSide)
}
