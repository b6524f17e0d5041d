package marketdata

import (
	"context"
	"fmt"

	domain "bracket-engine/internal/domain/entity/marketdata"

	"github.com/sirupsen/logrus"
)

// TickSink persists a batch of ticks.
type TickSink interface {
	RecordTicks(ctx context.Context, ticks []domain.PriceTick) error
}

// Recorder buffers streamed ticks and writes them in batches. OnTick has the
// price-monitor strategy signature so it can be chained after other
// strategies.
type Recorder struct {
	ticks  *batchBuffer[domain.PriceTick]
	logger *logrus.Entry
}

func NewRecorder(cfg BatchConfig, sink TickSink, logger *logrus.Logger) *Recorder {
	log := logger.WithField("component", "tick_recorder")
	return &Recorder{
		ticks:  newBatchBuffer(cfg, sink.RecordTicks, log),
		logger: log,
	}
}

// Run sets the context used by flushes until Stop.
func (r *Recorder) Run(ctx context.Context) {
	r.ticks.start(ctx)
	r.logger.Info("tick recorder started")
}

func (r *Recorder) OnTick(_ context.Context, tick domain.PriceTick) error {
	if err := r.ticks.enqueue(tick); err != nil {
		return fmt.Errorf("record tick %s: %w", tick.Symbol, err)
	}
	return nil
}

// Stop flushes buffered ticks with ctx. Ticks arriving afterwards are
// rejected.
func (r *Recorder) Stop(ctx context.Context) error {
	if err := r.ticks.stop(ctx); err != nil {
		return fmt.Errorf("flush ticks: %w", err)
	}
	r.logger.Info("tick recorder stopped")
	return nil
}
