package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// isolate points Load at a missing .env and clears the variables the tests
// rely on so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{
		"LOG_LEVEL", "HTTP_PORT", "HTTP_SHUTDOWN_TIMEOUT", "BINANCE_API_KEY", "BINANCE_API_SECRET",
		"BINANCE_TESTNET", "BINANCE_WORKING_TYPE", "DEFAULT_STOP_LOSS_PCT", "DEFAULT_TAKE_PROFIT_PCT",
		"EVENT_SOURCE", "DATABASE_DSN", "REDIS_ADDR", "RECORD_TICKS", "MONITOR_SYMBOL",
		"MONITOR_INTERVAL", "MONITOR_DRAIN_TIMEOUT", "BACKFILL_SYMBOLS", "BACKFILL_LIMIT",
		"RELAY_SYMBOLS", "RELAY_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:8080" {
		t.Errorf("HTTP.Addr() = %q, want 0.0.0.0:8080", cfg.HTTP.Addr())
	}
	if cfg.Log.Level != logrus.InfoLevel {
		t.Errorf("Log.Level = %v, want info", cfg.Log.Level)
	}
	if !cfg.Binance.Testnet {
		t.Error("Binance.Testnet = false, want true by default")
	}
	if !cfg.Binance.DefaultStopLossPct.Equal(decimal.NewFromInt(2)) || !cfg.Binance.DefaultTakeProfitPct.Equal(decimal.NewFromInt(4)) {
		t.Errorf("default bracket = %s/%s, want 2/4", cfg.Binance.DefaultStopLossPct, cfg.Binance.DefaultTakeProfitPct)
	}
	if cfg.Events.Source != EventSourceBinance {
		t.Errorf("Events.Source = %q, want binance", cfg.Events.Source)
	}
	if cfg.Monitor.Symbol != "BTCUSDT" || cfg.Monitor.Interval != "5m" {
		t.Errorf("Monitor = %s@%s, want BTCUSDT@5m", cfg.Monitor.Symbol, cfg.Monitor.Interval)
	}
	if cfg.Monitor.DrainTimeout != 10*time.Second {
		t.Errorf("Monitor.DrainTimeout = %v, want 10s", cfg.Monitor.DrainTimeout)
	}
	if cfg.Cache.TTL() != 30*time.Second {
		t.Errorf("Cache.TTL() = %v, want 30s", cfg.Cache.TTL())
	}
	if cfg.Postgres.DSN != "" || cfg.Redis.Addr != "" {
		t.Errorf("storage enabled by default: dsn=%q redis=%q", cfg.Postgres.DSN, cfg.Redis.Addr)
	}
	if len(cfg.Backfill.Symbols) != 1 || cfg.Backfill.Symbols[0] != "BTCUSDT" {
		t.Errorf("Backfill.Symbols = %v, want [BTCUSDT]", cfg.Backfill.Symbols)
	}
	if len(cfg.Relay.Symbols) != 1 || cfg.Relay.Symbols[0] != "BTCUSDT" || cfg.Relay.Interval != "5m" {
		t.Errorf("Relay = %v@%s, want [BTCUSDT]@5m", cfg.Relay.Symbols, cfg.Relay.Interval)
	}
	if err := cfg.Binance.RequireCredentials(); err == nil {
		t.Error("RequireCredentials() = nil without keys")
	}
}

func TestLoadOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("BINANCE_TESTNET", "false")
	t.Setenv("BINANCE_WORKING_TYPE", "contract_price")
	t.Setenv("DEFAULT_STOP_LOSS_PCT", "1.5")
	t.Setenv("EVENT_SOURCE", "RabbitMQ")
	t.Setenv("MONITOR_DRAIN_TIMEOUT", "750ms")
	t.Setenv("BACKFILL_SYMBOLS", "btcusdt, ethusdt,,")
	t.Setenv("DATABASE_DSN", "postgres://localhost/bracket")
	t.Setenv("RECORD_TICKS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Log.Level != logrus.DebugLevel {
		t.Errorf("Log.Level = %v, want debug", cfg.Log.Level)
	}
	if cfg.Binance.Testnet {
		t.Error("Binance.Testnet = true, want false")
	}
	if cfg.Binance.WorkingType != "CONTRACT_PRICE" {
		t.Errorf("Binance.WorkingType = %q, want CONTRACT_PRICE", cfg.Binance.WorkingType)
	}
	if !cfg.Binance.DefaultStopLossPct.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("DefaultStopLossPct = %s, want 1.5", cfg.Binance.DefaultStopLossPct)
	}
	if cfg.Events.Source != EventSourceRabbitMQ {
		t.Errorf("Events.Source = %q, want rabbitmq", cfg.Events.Source)
	}
	if cfg.Monitor.DrainTimeout != 750*time.Millisecond {
		t.Errorf("Monitor.DrainTimeout = %v, want 750ms", cfg.Monitor.DrainTimeout)
	}
	if strings.Join(cfg.Backfill.Symbols, ",") != "BTCUSDT,ETHUSDT" {
		t.Errorf("Backfill.Symbols = %v, want [BTCUSDT ETHUSDT]", cfg.Backfill.Symbols)
	}
	if !cfg.Recorder.Enabled {
		t.Error("Recorder.Enabled = false, want true")
	}
	if err := cfg.Binance.RequireCredentials(); err != nil {
		t.Errorf("RequireCredentials() error = %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"port not a number", "HTTP_PORT", "eighty", "HTTP_PORT"},
		{"port out of range", "HTTP_PORT", "70000", "HTTP_PORT"},
		{"bad log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"bad bool", "BINANCE_TESTNET", "maybe", "BINANCE_TESTNET"},
		{"bad decimal", "DEFAULT_TAKE_PROFIT_PCT", "four", "DEFAULT_TAKE_PROFIT_PCT"},
		{"negative pct", "DEFAULT_STOP_LOSS_PCT", "-1", "percentages"},
		{"bad duration", "MONITOR_DRAIN_TIMEOUT", "10", "MONITOR_DRAIN_TIMEOUT"},
		{"unknown source", "EVENT_SOURCE", "kafka", "EVENT_SOURCE"},
		{"unknown working type", "BINANCE_WORKING_TYPE", "LAST", "BINANCE_WORKING_TYPE"},
		{"recorder without db", "RECORD_TICKS", "true", "DATABASE_DSN"},
		{"backfill limit", "BACKFILL_LIMIT", "5000", "BACKFILL_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %s", tt.wantMsg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %q, want it to mention %s", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "test.env")
	body := "MONITOR_SYMBOL=ethusdt\nHTTP_PORT=7000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	// godotenv never overrides a variable that exists, even when empty.
	os.Unsetenv("MONITOR_SYMBOL")
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Monitor.Symbol != "ETHUSDT" {
		t.Errorf("Monitor.Symbol = %q, want ETHUSDT from the file", cfg.Monitor.Symbol)
	}
	if cfg.HTTP.Port != 7100 {
		t.Errorf("HTTP.Port = %d, want the environment to win over the file", cfg.HTTP.Port)
	}
}
