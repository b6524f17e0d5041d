package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bracket-engine/internal/application/service/execution"
	appmarketdata "bracket-engine/internal/application/service/marketdata"
	"bracket-engine/internal/application/service/oco"
	"bracket-engine/internal/application/service/pricemonitor"
	"bracket-engine/internal/config"
	"bracket-engine/internal/domain/interfaces"
	"bracket-engine/internal/infrastructure/binance"
	"bracket-engine/internal/infrastructure/broker"
	inframarketdata "bracket-engine/internal/infrastructure/marketdata"
	infrahttp "bracket-engine/internal/interfaces/http"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const recorderFlushTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bootLogger := logrus.New()
	bootLogger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.NewLogger()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("engine stopped with error")
		os.Exit(1)
	}
	logger.Info("engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.Binance.RequireCredentials(); err != nil {
		return err
	}

	client := binance.NewClient(cfg.Binance)
	gateway := binance.NewGateway(client, cfg.Binance, logger)

	source, closeSource, err := newEventSource(cfg, client, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	// An untyped nil keeps StorageEnabled false when no DSN is set.
	var repo interfaces.MarketDataRepository
	if cfg.Postgres.DSN != "" {
		pgRepo, err := inframarketdata.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("init marketdata repo: %w", err)
		}
		repo = pgRepo
	}
	marketdataService := appmarketdata.NewService(gateway, repo, logger)
	defer marketdataService.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	ocoMonitor := oco.NewMonitor(gateway, source, oco.Config{
		DrainTimeout:     cfg.Monitor.DrainTimeout,
		CancelRetryDelay: cfg.Monitor.CancelRetryDelay,
		EarlyEventTTL:    cfg.Monitor.EarlyEventTTL,
		EarlyEventLimit:  cfg.Monitor.EarlyEventLimit,
	}, logger)
	executor := execution.NewExecutor(gateway, ocoMonitor, logger)

	strategies := []pricemonitor.Strategy{pricemonitor.LogTicks(logger)}
	var recorder *inframarketdata.Recorder
	if cfg.Recorder.Enabled {
		recorder = inframarketdata.NewRecorder(inframarketdata.BatchConfig{
			Size:    cfg.Recorder.BatchSize,
			Timeout: cfg.Recorder.BatchTimeout,
		}, marketdataService, logger)
		// Timed flushes must outlive shutdown; Stop does the final flush.
		recorder.Run(context.WithoutCancel(ctx))
		strategies = append(strategies, pricemonitor.StrategyFunc(recorder.OnTick))
	}
	priceMonitor := pricemonitor.New(source, cfg.Monitor.Symbol, cfg.Monitor.Interval, pricemonitor.Chain(strategies...), logger)

	handler := infrahttp.NewHandler(infrahttp.Deps{
		Executor:             executor,
		Pairs:                ocoMonitor,
		Orders:               gateway,
		MarketData:           marketdataService,
		Cache:                redisClient,
		CacheTTL:             cfg.Cache.TTL(),
		DefaultStopLossPct:   cfg.Binance.DefaultStopLossPct,
		DefaultTakeProfitPct: cfg.Binance.DefaultTakeProfitPct,
	}, logger)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return untilCancelled(gctx, "oco monitor", ocoMonitor.Run)
	})
	g.Go(func() error {
		return untilCancelled(gctx, "price monitor", priceMonitor.Run)
	})
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":    cfg.HTTP.Addr(),
			"testnet": cfg.Binance.Testnet,
			"events":  cfg.Events.Source,
			"symbol":  cfg.Monitor.Symbol,
		}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if recorder != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), recorderFlushTimeout)
		defer flushCancel()
		if stopErr := recorder.Stop(flushCtx); stopErr != nil {
			logger.WithError(stopErr).Error("tick recorder flush failed")
		}
	}
	return err
}

// untilCancelled treats a worker that returns cleanly before shutdown as a
// failure, so a dropped stream takes the engine down instead of leaving
// brackets unwatched.
func untilCancelled(ctx context.Context, name string, run func(context.Context) error) error {
	if err := run(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if ctx.Err() == nil {
		return fmt.Errorf("%s: event stream ended", name)
	}
	return nil
}

func newEventSource(cfg *config.Config, client *futures.Client, logger *logrus.Logger) (interfaces.EventSource, func(), error) {
	if cfg.Events.Source == config.EventSourceRabbitMQ {
		src, err := broker.NewSource(cfg.RabbitMQ, cfg.Events.Buffer, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {
			if err := src.Close(); err != nil {
				logger.WithError(err).Warn("close rabbitmq source")
			}
		}, nil
	}
	src := binance.NewStreamSource(client, cfg.Events.Buffer, cfg.Events.ListenKeyKeepAlive, logger)
	return src, func() {}, nil
}
