package pricemonitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/entity/trading"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/stream"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeSource struct {
	ticks    *stream.Subscription[marketdata.PriceTick]
	err      error
	symbol   string
	interval string
}

func (f *fakeSource) SubscribePriceTicks(_ context.Context, symbol, interval string) (interfaces.Subscription[marketdata.PriceTick], error) {
	f.symbol, f.interval = symbol, interval
	if f.err != nil {
		return nil, f.err
	}
	return f.ticks, nil
}

func (f *fakeSource) SubscribeOrderEvents(context.Context) (interfaces.Subscription[trading.OrderEvent], error) {
	return nil, errors.New("not supported")
}

func tick(symbol, interval, close string) marketdata.PriceTick {
	return marketdata.PriceTick{
		Symbol:    symbol,
		Interval:  interval,
		Close:     decimal.RequireFromString(close),
		Timestamp: time.Now(),
	}
}

func TestRunDeliversTicksInOrder(t *testing.T) {
	src := &fakeSource{ticks: stream.FromSlice(
		tick("BTCUSDT", "5m", "30000"),
		tick("BTCUSDT", "5m", "30010.5"),
		tick("BTCUSDT", "5m", "29999.99"),
	)}
	logger, _ := logtest.NewNullLogger()

	var got []string
	strategy := StrategyFunc(func(_ context.Context, tk marketdata.PriceTick) error {
		got = append(got, tk.Close.String())
		return nil
	})
	m := New(src, "btcusdt", "5m", strategy, logger)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if src.symbol != "BTCUSDT" || src.interval != "5m" {
		t.Errorf("subscribed to %s@%s, want BTCUSDT@5m", src.symbol, src.interval)
	}
	want := []string{"30000", "30010.5", "29999.99"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("closes = %v, want %v", got, want)
	}
}

func TestRunSurvivesStrategyErrorsAndPanics(t *testing.T) {
	src := &fakeSource{ticks: stream.FromSlice(
		tick("BTCUSDT", "5m", "1"),
		tick("BTCUSDT", "5m", "2"),
		tick("BTCUSDT", "5m", "3"),
		tick("BTCUSDT", "5m", "4"),
	)}
	logger, hook := logtest.NewNullLogger()

	var calls int
	strategy := StrategyFunc(func(_ context.Context, tk marketdata.PriceTick) error {
		calls++
		switch tk.Close.String() {
		case "2":
			return errors.New("indicator not warmed up")
		case "3":
			panic("nil map")
		}
		return nil
	})
	m := New(src, "BTCUSDT", "5m", strategy, logger)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 4 {
		t.Fatalf("strategy calls = %d, want 4", calls)
	}

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "strategy failed on tick" {
			failures++
			if e.Data["symbol"] != "BTCUSDT" {
				t.Errorf("failure log symbol = %v, want BTCUSDT", e.Data["symbol"])
			}
		}
	}
	if failures != 2 {
		t.Errorf("logged failures = %d, want 2", failures)
	}
}

func TestRunSkipsOtherSymbolsAndIntervals(t *testing.T) {
	src := &fakeSource{ticks: stream.FromSlice(
		tick("ETHUSDT", "5m", "2000"),
		tick("BTCUSDT", "1m", "30001"),
		tick("BTCUSDT", "5m", "30002"),
	)}
	logger, _ := logtest.NewNullLogger()

	var got []string
	m := New(src, "BTCUSDT", "5m", StrategyFunc(func(_ context.Context, tk marketdata.PriceTick) error {
		got = append(got, tk.Close.String())
		return nil
	}), logger)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 || got[0] != "30002" {
		t.Errorf("delivered = %v, want [30002]", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ticks := stream.New[marketdata.PriceTick](0, nil)
	logger, _ := logtest.NewNullLogger()
	m := New(&fakeSource{ticks: ticks}, "BTCUSDT", "5m", LogTicks(logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	select {
	case <-ticks.Done():
	default:
		t.Error("subscription was not closed")
	}
}

func TestRunSubscribeError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	m := New(&fakeSource{err: errors.New("dial failed")}, "BTCUSDT", "5m", LogTicks(logger), logger)
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want subscribe error")
	}
}

func TestChainCallsEveryStrategy(t *testing.T) {
	var order []string
	first := StrategyFunc(func(context.Context, marketdata.PriceTick) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	second := StrategyFunc(func(context.Context, marketdata.PriceTick) error {
		order = append(order, "second")
		return nil
	})
	err := Chain(first, nil, second).OnTick(context.Background(), tick("BTCUSDT", "5m", "1"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Chain() error = %v, want boom", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Errorf("call order = %v, want [first second]", order)
	}
}
