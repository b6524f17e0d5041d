package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeGateway struct {
	mu sync.Mutex

	price    decimal.Decimal
	priceErr error
	entryErr error
	stopErrs map[trading.StopKind]error

	priceCalls   int
	marketOrders []interfaces.MarketOrder
	stopOrders   []interfaces.StopOrder
	nextID       int
}

func (g *fakeGateway) ListSymbols(context.Context) ([]string, error) { return nil, nil }

func (g *fakeGateway) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.priceCalls++
	return g.price, g.priceErr
}

func (g *fakeGateway) GetHistoricalCandles(context.Context, interfaces.CandleQuery) ([]marketdata.Candle, error) {
	return nil, nil
}

func (g *fakeGateway) SubmitMarketOrder(_ context.Context, o interfaces.MarketOrder) (trading.OrderID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marketOrders = append(g.marketOrders, o)
	if g.entryErr != nil {
		return "", g.entryErr
	}
	return g.id(), nil
}

func (g *fakeGateway) SubmitStopOrder(_ context.Context, o interfaces.StopOrder) (trading.OrderID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopOrders = append(g.stopOrders, o)
	if err := g.stopErrs[o.Kind]; err != nil {
		return "", err
	}
	return g.id(), nil
}

func (g *fakeGateway) CancelOrder(context.Context, string, trading.OrderID) error { return nil }

func (g *fakeGateway) ListOpenOrders(context.Context, string) ([]trading.Order, error) {
	return nil, nil
}

func (g *fakeGateway) id() trading.OrderID {
	g.nextID++
	return trading.OrderID(strings.Repeat("1", g.nextID))
}

type fakeRegistrar struct {
	pairs []trading.TrackedOrderPair
	err   error
}

func (r *fakeRegistrar) Register(_ context.Context, p trading.TrackedOrderPair) error {
	if r.err != nil {
		return r.err
	}
	r.pairs = append(r.pairs, p)
	return nil
}

func newTestExecutor(g *fakeGateway, r *fakeRegistrar) *Executor {
	logger, _ := logtest.NewNullLogger()
	return NewExecutor(g, r, logger)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestExecuteTradeLongAtMarket(t *testing.T) {
	g := &fakeGateway{price: dec("30000")}
	r := &fakeRegistrar{}
	e := newTestExecutor(g, r)

	pair, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
		Symbol:        "btcusdt",
		Side:          trading.SideLong,
		Quantity:      dec("0.01"),
		StopLossPct:   dec("2.5"),
		TakeProfitPct: dec("5"),
	})
	if err != nil {
		t.Fatalf("ExecuteTrade() error = %v", err)
	}
	if g.priceCalls != 1 {
		t.Errorf("price calls = %d, want 1", g.priceCalls)
	}
	if len(g.marketOrders) != 1 || g.marketOrders[0].Side != trading.OrderSideBuy || g.marketOrders[0].Symbol != "BTCUSDT" {
		t.Fatalf("market orders = %+v, want one BUY on BTCUSDT", g.marketOrders)
	}
	if len(g.stopOrders) != 2 {
		t.Fatalf("stop orders = %d, want 2", len(g.stopOrders))
	}
	want := map[trading.StopKind]string{
		trading.StopKindStopLoss:   "29250",
		trading.StopKindTakeProfit: "31500",
	}
	for _, o := range g.stopOrders {
		if o.Side != trading.OrderSideSell {
			t.Errorf("%s side = %s, want SELL", o.Kind, o.Side)
		}
		if !o.Quantity.Equal(dec("0.01")) {
			t.Errorf("%s qty = %s, want 0.01", o.Kind, o.Quantity)
		}
		if !o.TriggerPrice.Equal(dec(want[o.Kind])) {
			t.Errorf("%s trigger = %s, want %s", o.Kind, o.TriggerPrice, want[o.Kind])
		}
	}

	if pair.Status != trading.PairStatusPending {
		t.Errorf("status = %s, want PENDING", pair.Status)
	}
	if pair.EntryOrderID == "" || pair.StopLossOrderID == "" || pair.TakeProfitOrderID == "" {
		t.Errorf("pair ids incomplete: %+v", pair)
	}
	if len(r.pairs) != 1 || r.pairs[0].EntryOrderID != pair.EntryOrderID {
		t.Errorf("registered = %+v, want the returned pair", r.pairs)
	}

	seen := map[string]bool{}
	for _, id := range pair.ClientOrderIDs {
		if id == "" || seen[id] {
			t.Errorf("client order ids not unique: %v", pair.ClientOrderIDs)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Errorf("client order ids = %v, want 3", pair.ClientOrderIDs)
	}
}

func TestExecuteTradeShortWithExplicitPrice(t *testing.T) {
	g := &fakeGateway{}
	r := &fakeRegistrar{}
	e := newTestExecutor(g, r)

	pair, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
		Symbol:        "BTCUSDT",
		Side:          trading.SideShort,
		Quantity:      dec("1"),
		EntryPrice:    decPtr("30000"),
		StopLossPct:   dec("2"),
		TakeProfitPct: dec("4"),
	})
	if err != nil {
		t.Fatalf("ExecuteTrade() error = %v", err)
	}
	if g.priceCalls != 0 {
		t.Errorf("price calls = %d, want 0 with an explicit entry", g.priceCalls)
	}
	if g.marketOrders[0].Side != trading.OrderSideSell {
		t.Errorf("entry side = %s, want SELL", g.marketOrders[0].Side)
	}
	for _, o := range g.stopOrders {
		if o.Side != trading.OrderSideBuy {
			t.Errorf("%s side = %s, want BUY", o.Kind, o.Side)
		}
	}
	if !pair.Levels.StopLoss.Equal(dec("30600")) || !pair.Levels.TakeProfit.Equal(dec("28800")) {
		t.Errorf("levels = %+v, want SL 30600 TP 28800", pair.Levels)
	}
}

func TestExecuteTradeRejectsInvalidRequests(t *testing.T) {
	valid := trading.TradeRequest{
		Symbol:        "BTCUSDT",
		Side:          trading.SideLong,
		Quantity:      dec("1"),
		StopLossPct:   dec("1"),
		TakeProfitPct: dec("1"),
	}
	tests := []struct {
		name    string
		mutate  func(r *trading.TradeRequest)
		wantErr error
	}{
		{"unknown side", func(r *trading.TradeRequest) { r.Side = "SIDEWAYS" }, trading.ErrInvalidSide},
		{"empty symbol", func(r *trading.TradeRequest) { r.Symbol = "" }, trading.ErrInvalidInput},
		{"zero quantity", func(r *trading.TradeRequest) { r.Quantity = decimal.Zero }, trading.ErrInvalidInput},
		{"negative entry", func(r *trading.TradeRequest) { r.EntryPrice = decPtr("-1") }, trading.ErrInvalidInput},
		{"negative stop loss", func(r *trading.TradeRequest) { r.StopLossPct = dec("-1") }, trading.ErrInvalidInput},
		{"negative take profit", func(r *trading.TradeRequest) { r.TakeProfitPct = dec("-0.5") }, trading.ErrInvalidInput},
		{"stop loss wipes out long", func(r *trading.TradeRequest) {
			r.EntryPrice = decPtr("100")
			r.StopLossPct = dec("100")
		}, trading.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{price: dec("100")}
			e := newTestExecutor(g, &fakeRegistrar{})
			req := valid
			tt.mutate(&req)
			_, err := e.ExecuteTrade(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExecuteTrade() error = %v, want %v", err, tt.wantErr)
			}
			if !IsClientError(err) {
				t.Errorf("IsClientError(%v) = false", err)
			}
			if len(g.marketOrders)+len(g.stopOrders) != 0 {
				t.Errorf("orders submitted for an invalid request")
			}
		})
	}
}

func TestExecuteTradePriceUnavailable(t *testing.T) {
	venueErr := errors.New("symbol not found")
	g := &fakeGateway{priceErr: venueErr}
	e := newTestExecutor(g, &fakeRegistrar{})

	_, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
		Symbol: "NOPEUSDT", Side: trading.SideLong, Quantity: dec("1"),
		StopLossPct: dec("1"), TakeProfitPct: dec("1"),
	})
	if !errors.Is(err, trading.ErrPriceUnavailable) || !errors.Is(err, venueErr) {
		t.Fatalf("ExecuteTrade() error = %v, want ErrPriceUnavailable wrapping the venue error", err)
	}
	if g.priceCalls != 1 {
		t.Errorf("price calls = %d, want exactly 1", g.priceCalls)
	}
	if len(g.marketOrders) != 0 {
		t.Errorf("entry submitted without a price")
	}
}

func TestExecuteTradeEntryFailurePlacesNoExits(t *testing.T) {
	g := &fakeGateway{price: dec("30000"), entryErr: errors.New("insufficient margin")}
	r := &fakeRegistrar{}
	e := newTestExecutor(g, r)

	_, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
		Symbol: "BTCUSDT", Side: trading.SideLong, Quantity: dec("1"),
		StopLossPct: dec("2"), TakeProfitPct: dec("4"),
	})
	if !errors.Is(err, trading.ErrGateway) {
		t.Fatalf("ExecuteTrade() error = %v, want ErrGateway", err)
	}
	if len(g.stopOrders) != 0 {
		t.Errorf("stop orders = %d, want 0 after a failed entry", len(g.stopOrders))
	}
	if len(r.pairs) != 0 {
		t.Errorf("pair registered after a failed entry")
	}
}

func TestExecuteTradePartialBracket(t *testing.T) {
	tests := []struct {
		name       string
		stopErrs   map[trading.StopKind]error
		wantFailed []trading.StopKind
		wantPlaced []trading.StopKind
	}{
		{
			name:       "take profit rejected",
			stopErrs:   map[trading.StopKind]error{trading.StopKindTakeProfit: errors.New("would immediately trigger")},
			wantFailed: []trading.StopKind{trading.StopKindTakeProfit},
			wantPlaced: []trading.StopKind{trading.StopKindStopLoss},
		},
		{
			name:       "stop loss rejected",
			stopErrs:   map[trading.StopKind]error{trading.StopKindStopLoss: errors.New("rate limited")},
			wantFailed: []trading.StopKind{trading.StopKindStopLoss},
			wantPlaced: []trading.StopKind{trading.StopKindTakeProfit},
		},
		{
			name: "both rejected",
			stopErrs: map[trading.StopKind]error{
				trading.StopKindStopLoss:   errors.New("x"),
				trading.StopKindTakeProfit: errors.New("y"),
			},
			wantFailed: []trading.StopKind{trading.StopKindStopLoss, trading.StopKindTakeProfit},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{price: dec("30000"), stopErrs: tt.stopErrs}
			r := &fakeRegistrar{}
			e := newTestExecutor(g, r)

			pair, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
				Symbol: "BTCUSDT", Side: trading.SideLong, Quantity: dec("1"),
				StopLossPct: dec("2"), TakeProfitPct: dec("4"),
			})
			if pair != nil {
				t.Errorf("pair = %+v, want nil", pair)
			}
			if !errors.Is(err, trading.ErrPartialBracket) {
				t.Fatalf("ExecuteTrade() error = %v, want ErrPartialBracket", err)
			}
			var perr *trading.PartialBracketError
			if !errors.As(err, &perr) {
				t.Fatalf("error is %T, want *PartialBracketError", err)
			}
			if perr.Symbol != "BTCUSDT" || perr.EntryOrderID == "" {
				t.Errorf("PartialBracketError = %+v, want symbol and entry id", perr)
			}
			for _, kind := range tt.wantFailed {
				if _, ok := perr.FailedLegs[kind]; !ok {
					t.Errorf("FailedLegs missing %s", kind)
				}
				if !strings.Contains(err.Error(), string(kind)) {
					t.Errorf("Error() = %q, want it to name %s", err.Error(), kind)
				}
			}
			for _, kind := range tt.wantPlaced {
				if perr.PlacedLegs[kind] == "" {
					t.Errorf("PlacedLegs missing %s", kind)
				}
			}
			if len(g.stopOrders) != 2 {
				t.Errorf("stop orders attempted = %d, want 2", len(g.stopOrders))
			}
			if len(r.pairs) != 0 {
				t.Errorf("partial bracket was registered")
			}
		})
	}
}

func TestExecuteTradeRegisterFailure(t *testing.T) {
	g := &fakeGateway{price: dec("30000")}
	regErr := errors.New("duplicate")
	e := newTestExecutor(g, &fakeRegistrar{err: regErr})

	pair, err := e.ExecuteTrade(context.Background(), trading.TradeRequest{
		Symbol: "BTCUSDT", Side: trading.SideLong, Quantity: dec("1"),
		StopLossPct: dec("2"), TakeProfitPct: dec("4"),
	})
	if !errors.Is(err, regErr) {
		t.Fatalf("ExecuteTrade() error = %v, want the register error", err)
	}
	if pair == nil || pair.StopLossOrderID == "" {
		t.Errorf("pair = %+v, want the placed pair returned for reconciliation", pair)
	}
}

// hangupGateway simulates the caller going away right after the venue
// accepts the entry. Stop orders honour their context.
type hangupGateway struct {
	*fakeGateway
	hangup context.CancelFunc
}

func (g *hangupGateway) SubmitMarketOrder(ctx context.Context, o interfaces.MarketOrder) (trading.OrderID, error) {
	id, err := g.fakeGateway.SubmitMarketOrder(ctx, o)
	g.hangup()
	return id, err
}

func (g *hangupGateway) SubmitStopOrder(ctx context.Context, o interfaces.StopOrder) (trading.OrderID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.fakeGateway.SubmitStopOrder(ctx, o)
}

type ctxRegistrar struct {
	fakeRegistrar
	ctxErr error
}

func (r *ctxRegistrar) Register(ctx context.Context, p trading.TrackedOrderPair) error {
	r.ctxErr = ctx.Err()
	return r.fakeRegistrar.Register(ctx, p)
}

func TestExecuteTradeProtectsEntryAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := &fakeGateway{price: dec("30000")}
	g := &hangupGateway{fakeGateway: inner, hangup: cancel}
	r := &ctxRegistrar{}
	logger, _ := logtest.NewNullLogger()
	e := NewExecutor(g, r, logger)

	pair, err := e.ExecuteTrade(ctx, trading.TradeRequest{
		Symbol: "BTCUSDT", Side: trading.SideLong, Quantity: dec("0.01"),
		StopLossPct: dec("2"), TakeProfitPct: dec("4"),
	})
	if err != nil {
		t.Fatalf("ExecuteTrade() error = %v, want the bracket placed despite the caller leaving", err)
	}
	if len(inner.stopOrders) != 2 {
		t.Errorf("stop orders placed = %d, want 2", len(inner.stopOrders))
	}
	if r.ctxErr != nil {
		t.Errorf("Register saw ctx error %v", r.ctxErr)
	}
	if len(r.pairs) != 1 || pair == nil || pair.TakeProfitOrderID == "" {
		t.Errorf("pair = %+v, registered = %d, want one complete pair", pair, len(r.pairs))
	}
}
