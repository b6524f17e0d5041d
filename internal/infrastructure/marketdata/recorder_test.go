package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "bracket-engine/internal/domain/entity/marketdata"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]domain.PriceTick
	err     error
	flushed chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{flushed: make(chan struct{}, 16)}
}

func (s *recordingSink) RecordTicks(_ context.Context, ticks []domain.PriceTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, ticks)
	s.flushed <- struct{}{}
	return nil
}

func (s *recordingSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func tick(n int64) domain.PriceTick {
	return domain.PriceTick{Symbol: "BTCUSDT", Interval: "1m", Close: decimal.NewFromInt(60000 + n)}
}

func TestRecorderFlushesOnSize(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sink := newRecordingSink()
	rec := NewRecorder(BatchConfig{Size: 3}, sink, logger)
	rec.Run(context.Background())

	for i := int64(0); i < 7; i++ {
		if err := rec.OnTick(context.Background(), tick(i)); err != nil {
			t.Fatalf("OnTick(%d) error = %v", i, err)
		}
	}
	if got := sink.sizes(); len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Fatalf("batches before stop = %v, want [3 3]", got)
	}
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := sink.sizes(); len(got) != 3 || got[2] != 1 {
		t.Fatalf("batches after stop = %v, want [3 3 1]", got)
	}
	if !sink.batches[2][0].Close.Equal(decimal.NewFromInt(60006)) {
		t.Errorf("last tick = %s, want 60006", sink.batches[2][0].Close)
	}
}

func TestRecorderFlushesOnTimeout(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sink := newRecordingSink()
	rec := NewRecorder(BatchConfig{Size: 100, Timeout: 10 * time.Millisecond}, sink, logger)
	rec.Run(context.Background())

	for i := int64(0); i < 2; i++ {
		if err := rec.OnTick(context.Background(), tick(i)); err != nil {
			t.Fatalf("OnTick(%d) error = %v", i, err)
		}
	}
	select {
	case <-sink.flushed:
	case <-time.After(time.Second):
		t.Fatal("timed flush did not happen")
	}
	if got := sink.sizes(); len(got) != 1 || got[0] != 2 {
		t.Errorf("batches = %v, want [2]", got)
	}
}

func TestRecorderRejectsWhenNotRunning(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sink := newRecordingSink()
	rec := NewRecorder(BatchConfig{Size: 10}, sink, logger)

	if err := rec.OnTick(context.Background(), tick(1)); !errors.Is(err, errBufferStopped) {
		t.Errorf("OnTick before Run error = %v, want errBufferStopped", err)
	}

	rec.Run(context.Background())
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := rec.OnTick(context.Background(), tick(2)); !errors.Is(err, errBufferStopped) {
		t.Errorf("OnTick after Stop error = %v, want errBufferStopped", err)
	}
	if got := sink.sizes(); len(got) != 0 {
		t.Errorf("batches = %v, want none", got)
	}
}

func TestRecorderReportsSinkFailure(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sink := newRecordingSink()
	sink.err = errors.New("copy failed")
	rec := NewRecorder(BatchConfig{Size: 1}, sink, logger)
	rec.Run(context.Background())

	err := rec.OnTick(context.Background(), tick(1))
	if !errors.Is(err, sink.err) {
		t.Errorf("OnTick() error = %v, want the sink error", err)
	}
}

// flakySink fails its first write, as a flush racing shutdown would.
type flakySink struct {
	mu       sync.Mutex
	calls    int
	written  []domain.PriceTick
	attempts chan struct{}
}

func (s *flakySink) RecordTicks(_ context.Context, ticks []domain.PriceTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	defer func() { s.attempts <- struct{}{} }()
	if s.calls == 1 {
		return context.Canceled
	}
	s.written = append(s.written, ticks...)
	return nil
}

func TestRecorderStopRetriesFailedTimedFlush(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sink := &flakySink{attempts: make(chan struct{}, 4)}
	rec := NewRecorder(BatchConfig{Size: 100, Timeout: 10 * time.Millisecond}, sink, logger)
	rec.Run(context.Background())

	for i := int64(0); i < 2; i++ {
		if err := rec.OnTick(context.Background(), tick(i)); err != nil {
			t.Fatalf("OnTick(%d) error = %v", i, err)
		}
	}
	select {
	case <-sink.attempts:
	case <-time.After(time.Second):
		t.Fatal("timed flush did not happen")
	}

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.calls != 2 || len(sink.written) != 2 {
		t.Fatalf("calls = %d, written = %d, want the failed batch rewritten by Stop", sink.calls, len(sink.written))
	}
	if !sink.written[0].Close.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("first tick = %s, want 60000", sink.written[0].Close)
	}
}
