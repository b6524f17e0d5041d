package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "bracket-engine/internal/domain/entity/marketdata"
	"bracket-engine/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ interfaces.MarketDataRepository = (*Repository)(nil)

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Candles

var candleColumns = []string{
	"candle_id",
	"symbol",
	"interval",
	"open_time",
	"close_time",
	"open",
	"high",
	"low",
	"close",
	"volume",
}

const selectCandles = `
	SELECT candle_id, symbol, interval, open_time, close_time,
	       open, high, low, close, volume
	FROM candles`

// AddCandles bulk-loads candles. Rows that collide with an existing
// (symbol, interval, open_time) fail the whole batch.
func (r *Repository) AddCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(candles))
	for i := range candles {
		if candles[i].ID == uuid.Nil {
			candles[i].ID = uuid.New()
		}
		c := candles[i]
		rows = append(rows, []any{
			c.ID,
			c.Symbol,
			c.Interval,
			c.OpenTime,
			c.CloseTime,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
		})
	}
	if _, err := r.pool.CopyFrom(ctx, pgx.Identifier{"candles"}, candleColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy candles: %w", err)
	}
	return nil
}

func (r *Repository) GetCandlesBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	const query = selectCandles + `
		WHERE symbol=$1
		  AND interval=$2
		  AND open_time >= $3
		  AND open_time <= $4
		ORDER BY open_time ASC`
	rows, err := r.pool.Query(ctx, query, symbol, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	return collectCandles(rows)
}

// GetLastCandles returns the newest candles first.
func (r *Repository) GetLastCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = selectCandles + `
		WHERE symbol=$1 AND interval=$2
		ORDER BY open_time DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("query last candles: %w", err)
	}
	return collectCandles(rows)
}

func collectCandles(rows pgx.Rows) ([]domain.Candle, error) {
	defer rows.Close()
	var candles []domain.Candle
	for rows.Next() {
		candle, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, rows.Err()
}

func scanCandle(row pgx.Row) (domain.Candle, error) {
	candle := domain.Candle{}
	err := row.Scan(
		&candle.ID,
		&candle.Symbol,
		&candle.Interval,
		&candle.OpenTime,
		&candle.CloseTime,
		&candle.Open,
		&candle.High,
		&candle.Low,
		&candle.Close,
		&candle.Volume,
	)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("scan candle: %w", err)
	}
	return candle, nil
}

// Price ticks

var tickColumns = []string{"symbol", "interval", "close", "ts", "final"}

func (r *Repository) AddPriceTicks(ctx context.Context, ticks []domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{t.Symbol, t.Interval, t.Close, t.Timestamp, t.Final})
	}
	if _, err := r.pool.CopyFrom(ctx, pgx.Identifier{"price_ticks"}, tickColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy price ticks: %w", err)
	}
	return nil
}

// GetLastPriceTicks returns the newest ticks first. An empty interval
// matches every interval.
func (r *Repository) GetLastPriceTicks(ctx context.Context, symbol, interval string, limit int) ([]domain.PriceTick, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = `
		SELECT symbol, interval, close, ts, final
		FROM price_ticks
		WHERE symbol=$1 AND ($2 = '' OR interval=$2)
		ORDER BY ts DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("query price ticks: %w", err)
	}
	defer rows.Close()

	var ticks []domain.PriceTick
	for rows.Next() {
		var t domain.PriceTick
		if err := rows.Scan(&t.Symbol, &t.Interval, &t.Close, &t.Timestamp, &t.Final); err != nil {
			return nil, fmt.Errorf("scan price tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}
