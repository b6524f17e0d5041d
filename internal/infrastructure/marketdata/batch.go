package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var errBufferStopped = errors.New("batch buffer is not running")

// BatchConfig controls when buffered rows are flushed: once Size rows are
// queued or Timeout after the first queued row, whichever comes first.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// batchBuffer collects rows and hands them to flushFn in batches. Size
// flushes run on the enqueueing goroutine, timed flushes on the timer's.
type batchBuffer[T any] struct {
	cfg     BatchConfig
	flushFn func(context.Context, []T) error
	logger  *logrus.Entry

	mu    sync.Mutex
	ctx   context.Context
	items []T
	timer *time.Timer
	timed sync.WaitGroup // timer flushes in flight
}

func newBatchBuffer[T any](cfg BatchConfig, flushFn func(context.Context, []T) error, logger *logrus.Entry) *batchBuffer[T] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	return &batchBuffer[T]{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger,
	}
}

// start sets the context used by flushes until stop.
func (bb *batchBuffer[T]) start(ctx context.Context) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.ctx = ctx
}

func (bb *batchBuffer[T]) enqueue(item T) error {
	bb.mu.Lock()
	ctx := bb.ctx
	if ctx == nil {
		bb.mu.Unlock()
		return errBufferStopped
	}
	if err := ctx.Err(); err != nil {
		bb.mu.Unlock()
		return err
	}
	bb.items = append(bb.items, item)
	var batch []T
	if len(bb.items) >= bb.cfg.Size {
		batch = bb.takeLocked()
	} else if bb.timer == nil && bb.cfg.Timeout > 0 {
		bb.timer = time.AfterFunc(bb.cfg.Timeout, bb.flushOnTimer)
	}
	bb.mu.Unlock()

	return bb.flush(ctx, batch)
}

// flushOnTimer puts a failed batch back at the head of the buffer so stop
// can retry it.
func (bb *batchBuffer[T]) flushOnTimer() {
	bb.mu.Lock()
	ctx := bb.ctx
	if ctx == nil {
		bb.mu.Unlock()
		return
	}
	bb.timed.Add(1)
	defer bb.timed.Done()
	batch := bb.takeLocked()
	bb.mu.Unlock()

	if err := bb.flush(ctx, batch); err != nil {
		bb.logger.WithError(err).WithField("size", len(batch)).Warn("batch flush failed, keeping rows")
		bb.mu.Lock()
		bb.items = append(batch, bb.items...)
		bb.mu.Unlock()
	}
}

// takeLocked empties the buffer and disarms the timer.
func (bb *batchBuffer[T]) takeLocked() []T {
	if bb.timer != nil {
		bb.timer.Stop()
		bb.timer = nil
	}
	if len(bb.items) == 0 {
		return nil
	}
	batch := make([]T, len(bb.items))
	copy(batch, bb.items)
	bb.items = bb.items[:0]
	return batch
}

func (bb *batchBuffer[T]) flush(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	started := time.Now()
	if err := bb.flushFn(ctx, batch); err != nil {
		return err
	}
	bb.logger.WithFields(logrus.Fields{
		"size":    len(batch),
		"took_ms": time.Since(started).Milliseconds(),
	}).Debug("flushed batch")
	return nil
}

// stop rejects further rows, waits for a running timer flush and flushes
// what is left with ctx.
func (bb *batchBuffer[T]) stop(ctx context.Context) error {
	bb.mu.Lock()
	bb.ctx = nil
	bb.mu.Unlock()
	bb.timed.Wait()

	bb.mu.Lock()
	batch := bb.takeLocked()
	bb.mu.Unlock()
	return bb.flush(ctx, batch)
}
