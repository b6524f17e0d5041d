package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCandleLimit = 100
	MaxCandleLimit     = 1500
)

var (
	ErrInvalidLimit    = fmt.Errorf("%w: limit must be between 1 and 1500", trading.ErrInvalidInput)
	ErrInvalidInterval = fmt.Errorf("%w: interval is required", trading.ErrInvalidInput)
	ErrInvalidSymbol   = fmt.Errorf("%w: symbol is required", trading.ErrInvalidInput)
)

// Service answers market data questions from the venue and, when a
// repository is configured, from local storage.
type Service struct {
	gateway interfaces.OrderGateway
	repo    interfaces.MarketDataRepository
	logger  *logrus.Entry
}

// NewService builds the service. repo may be nil; storage calls then fail
// with trading.ErrStorageDisabled.
func NewService(gateway interfaces.OrderGateway, repo interfaces.MarketDataRepository, logger *logrus.Logger) *Service {
	return &Service{
		gateway: gateway,
		repo:    repo,
		logger:  logger.WithField("component", "marketdata_service"),
	}
}

// Venue

func (s *Service) ListSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.gateway.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list symbols: %w", trading.ErrGateway, err)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// CurrentPrices quotes every symbol. Symbols whose lookup fails are logged
// and left out of the result.
func (s *Service) CurrentPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, raw := range symbols {
		symbol := normalizeSymbol(raw)
		if symbol == "" {
			continue
		}
		price, err := s.gateway.GetCurrentPrice(ctx, symbol)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.WithError(err).WithField("symbol", symbol).Warn("failed to fetch price")
			continue
		}
		prices[symbol] = price
	}
	return prices, nil
}

// HistoricalCandles fetches klines from the venue. limit 0 means the
// default; a reversed start/end range is swapped.
func (s *Service) HistoricalCandles(ctx context.Context, symbol, interval string, start, end *time.Time, limit int) ([]marketdata.Candle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if interval == "" {
		return nil, ErrInvalidInterval
	}
	if limit == 0 {
		limit = DefaultCandleLimit
	}
	if limit < 0 || limit > MaxCandleLimit {
		return nil, ErrInvalidLimit
	}
	if start != nil && end != nil && start.After(*end) {
		start, end = end, start
	}
	candles, err := s.gateway.GetHistoricalCandles(ctx, interfaces.CandleQuery{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      end,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: klines for %s@%s: %w", trading.ErrGateway, symbol, interval, err)
	}
	return candles, nil
}

// Storage

func (s *Service) StoreCandles(ctx context.Context, candles []marketdata.Candle) error {
	if s.repo == nil {
		return trading.ErrStorageDisabled
	}
	if len(candles) == 0 {
		return nil
	}
	return s.repo.AddCandles(ctx, candles)
}

func (s *Service) StoredCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]marketdata.Candle, error) {
	if s.repo == nil {
		return nil, trading.ErrStorageDisabled
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if interval == "" {
		return nil, ErrInvalidInterval
	}
	if from.After(to) {
		from, to = to, from
	}
	return s.repo.GetCandlesBetween(ctx, symbol, interval, from, to)
}

func (s *Service) LastStoredCandles(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Candle, error) {
	if s.repo == nil {
		return nil, trading.ErrStorageDisabled
	}
	if interval == "" {
		return nil, ErrInvalidInterval
	}
	if limit <= 0 || limit > MaxCandleLimit {
		return nil, ErrInvalidLimit
	}
	return s.repo.GetLastCandles(ctx, normalizeSymbol(symbol), interval, limit)
}

func (s *Service) RecordTicks(ctx context.Context, ticks []marketdata.PriceTick) error {
	if s.repo == nil {
		return trading.ErrStorageDisabled
	}
	if len(ticks) == 0 {
		return nil
	}
	return s.repo.AddPriceTicks(ctx, ticks)
}

func (s *Service) RecentTicks(ctx context.Context, symbol, interval string, limit int) ([]marketdata.PriceTick, error) {
	if s.repo == nil {
		return nil, trading.ErrStorageDisabled
	}
	if interval == "" {
		return nil, ErrInvalidInterval
	}
	if limit == 0 {
		limit = DefaultCandleLimit
	}
	if limit < 0 || limit > MaxCandleLimit {
		return nil, ErrInvalidLimit
	}
	return s.repo.GetLastPriceTicks(ctx, normalizeSymbol(symbol), interval, limit)
}

func (s *Service) StorageEnabled() bool {
	return s.repo != nil
}

func (s *Service) Close() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
