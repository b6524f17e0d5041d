package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	appmarketdata "bracket-engine/internal/application/service/marketdata"
	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/infrastructure/binance"
	inframarketdata "bracket-engine/internal/infrastructure/marketdata"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bootLogger := logrus.New()
	bootLogger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatalf("config error: %v", err)
	}
	logger := cfg.NewLogger()
	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_DSN is required")
	}

	repo, err := inframarketdata.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}

	// Klines are public; the client works without credentials.
	client := binance.NewClient(cfg.Binance)
	gateway := binance.NewGateway(client, cfg.Binance, logger)
	service := appmarketdata.NewService(gateway, repo, logger)
	defer service.Close()

	failed := 0
	for _, symbol := range cfg.Backfill.Symbols {
		stored, err := backfill(ctx, service, symbol, cfg.Backfill, time.Now().UTC())
		log := logger.WithFields(logrus.Fields{
			"symbol":   symbol,
			"interval": cfg.Backfill.Interval,
			"stored":   stored,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn("backfill interrupted")
				return
			}
			log.WithError(err).Error("backfill failed")
			failed++
			continue
		}
		log.Info("candles synced")
	}
	if failed > 0 {
		logger.Fatalf("backfill failed for %d of %d symbols", failed, len(cfg.Backfill.Symbols))
	}
}

// backfill pages forward from the newest stored candle, or from now minus
// the lookback on an empty table. Candles still open at now are left for the
// next run.
func backfill(ctx context.Context, service *appmarketdata.Service, symbol string, cfg config.BackfillConfig, now time.Time) (int, error) {
	start := now.Add(-cfg.Lookback)
	last, err := service.LastStoredCandles(ctx, symbol, cfg.Interval, 1)
	if err != nil {
		return 0, fmt.Errorf("last stored candle: %w", err)
	}
	if len(last) > 0 {
		start = last[0].OpenTime.Add(time.Millisecond)
	}

	stored := 0
	for start.Before(now) {
		from := start
		page, err := service.HistoricalCandles(ctx, symbol, cfg.Interval, &from, nil, cfg.Limit)
		if err != nil {
			return stored, err
		}
		closed := closedCandles(page, now)
		if len(closed) == 0 {
			break
		}
		if err := service.StoreCandles(ctx, closed); err != nil {
			return stored, fmt.Errorf("store candles: %w", err)
		}
		stored += len(closed)
		start = closed[len(closed)-1].OpenTime.Add(time.Millisecond)
		if len(page) < cfg.Limit {
			break
		}
	}
	return stored, nil
}

func closedCandles(page []marketdata.Candle, now time.Time) []marketdata.Candle {
	closed := page[:0:0]
	for _, c := range page {
		if c.CloseTime.After(now) {
			continue
		}
		closed = append(closed, c)
	}
	return closed
}
