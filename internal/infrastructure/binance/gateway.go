// Package binance adapts the Binance USDⓈ-M futures API to the engine's
// gateway and event-source contracts.
package binance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Gateway is the REST side of the venue. It is safe for concurrent use.
type Gateway struct {
	client      *futures.Client
	workingType futures.WorkingType
	logger      *logrus.Entry
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

// NewClient builds the futures client. The testnet switch is process-wide in
// the library and also selects the websocket endpoints.
func NewClient(cfg config.BinanceConfig) *futures.Client {
	futures.UseTestnet = cfg.Testnet
	return gobinance.NewFuturesClient(cfg.APIKey, cfg.SecretKey)
}

func NewGateway(client *futures.Client, cfg config.BinanceConfig, logger *logrus.Logger) *Gateway {
	workingType := futures.WorkingTypeMarkPrice
	if strings.EqualFold(cfg.WorkingType, string(futures.WorkingTypeContractPrice)) {
		workingType = futures.WorkingTypeContractPrice
	}
	return &Gateway{
		client:      client,
		workingType: workingType,
		logger:      logger.WithField("component", "binance_gateway"),
	}
}

// ListSymbols returns the symbols currently trading.
func (g *Gateway) ListSymbols(ctx context.Context) ([]string, error) {
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (g *Gateway) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != symbol {
			continue
		}
		return parseDecimal("price", p.Price)
	}
	return decimal.Zero, fmt.Errorf("ticker price %s: symbol missing from response", symbol)
}

func (g *Gateway) GetHistoricalCandles(ctx context.Context, q interfaces.CandleQuery) ([]marketdata.Candle, error) {
	svc := g.client.NewKlinesService().Symbol(q.Symbol).Interval(q.Interval)
	if q.Limit > 0 {
		svc = svc.Limit(q.Limit)
	}
	if q.Start != nil {
		svc = svc.StartTime(q.Start.UnixMilli())
	}
	if q.End != nil {
		svc = svc.EndTime(q.End.UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s@%s: %w", q.Symbol, q.Interval, err)
	}
	candles := make([]marketdata.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := candleFromKline(q.Symbol, q.Interval, k)
		if err != nil {
			return nil, fmt.Errorf("klines %s@%s: %w", q.Symbol, q.Interval, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (g *Gateway) SubmitMarketOrder(ctx context.Context, o interfaces.MarketOrder) (trading.OrderID, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(o.Symbol).
		Side(sideToBinance(o.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(o.Quantity.String())
	if o.ClientOrderID != "" {
		svc = svc.NewClientOrderID(o.ClientOrderID)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("market %s %s %s: %w", o.Side, o.Quantity, o.Symbol, err)
	}
	id := formatOrderID(res.OrderID)
	g.logger.WithFields(logrus.Fields{
		"symbol":   o.Symbol,
		"side":     o.Side,
		"qty":      o.Quantity.String(),
		"order_id": id,
	}).Debug("market order accepted")
	return id, nil
}

// SubmitStopOrder places a reduce-only STOP_MARKET or TAKE_PROFIT_MARKET leg.
func (g *Gateway) SubmitStopOrder(ctx context.Context, o interfaces.StopOrder) (trading.OrderID, error) {
	orderType, err := stopOrderType(o.Kind)
	if err != nil {
		return "", err
	}
	svc := g.client.NewCreateOrderService().
		Symbol(o.Symbol).
		Side(sideToBinance(o.Side)).
		Type(orderType).
		StopPrice(o.TriggerPrice.String()).
		Quantity(o.Quantity.String()).
		ReduceOnly(true).
		WorkingType(g.workingType)
	if o.ClientOrderID != "" {
		svc = svc.NewClientOrderID(o.ClientOrderID)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%s %s %s @ %s: %w", orderType, o.Side, o.Symbol, o.TriggerPrice, err)
	}
	id := formatOrderID(res.OrderID)
	g.logger.WithFields(logrus.Fields{
		"symbol":   o.Symbol,
		"type":     orderType,
		"trigger":  o.TriggerPrice.String(),
		"order_id": id,
	}).Debug("stop order accepted")
	return id, nil
}

// CancelOrder wraps trading.ErrOrderTerminal when the venue reports the order
// as already gone.
func (g *Gateway) CancelOrder(ctx context.Context, symbol string, id trading.OrderID) error {
	orderID, err := parseOrderID(id)
	if err != nil {
		return err
	}
	if _, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
		if isTerminalOrderError(err) {
			return fmt.Errorf("cancel %s on %s: %w: %w", id, symbol, trading.ErrOrderTerminal, err)
		}
		return fmt.Errorf("cancel %s on %s: %w", id, symbol, err)
	}
	return nil
}

func (g *Gateway) ListOpenOrders(ctx context.Context, symbol string) ([]trading.Order, error) {
	svc := g.client.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	raw, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders %s: %w", symbol, err)
	}
	orders := make([]trading.Order, 0, len(raw))
	for _, o := range raw {
		order, err := orderFromBinance(o)
		if err != nil {
			g.logger.WithError(err).WithField("symbol", symbol).Warn("skip malformed open order")
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}
