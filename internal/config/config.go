package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTP_PORT  string `env:"HTTP_PORT"`
	DB_STRING  string `env:"DB_STRING"`
	LOG_FORMAT string `env:"LOG_FORMAT"`
	LOG_LEVEL  string `env:"LOG_LEVEL"`

	KAFKA_BROKERS      string `env:"KAFKA_BROKERS"`
	KAFKA_NOTIFY_TOPIC string `env:"KAFKA_NOTIFY_TOPIC"`
	KAFKA_CHECK_TOPIC  string `env:"KAFKA_CHECK_TOPIC"`
	KAFKA_GROUP_ID     string `env:"KAFKA_GROUP_ID"`

	REDIS_ADDR  string        `env:"REDIS_ADDR"`
	SESSION_TTL time.Duration `env:"SESSION_TTL"`

	// Payment
	RECEIVING_ADDRESS string          `env:"BITCOIN_WALLET"`
	OPERATOR_IDS      []int64         `env:"ADMIN_IDS"`
	FIAT_CURRENCY     string          `env:"FIAT_CURRENCY"`
	PAYMENT_DEADLINE  time.Duration   `env:"PAYMENT_DEADLINE"`
	SWEEP_INTERVAL    time.Duration   `env:"SWEEP_INTERVAL"`
	RATE_FRESHNESS    time.Duration   `env:"RATE_FRESHNESS"`
	FALLBACK_RATE     decimal.Decimal `env:"FALLBACK_RATE"`
	UNIT_MIN          int             `env:"DISAMBIGUATION_MIN"`
	UNIT_MAX          int             `env:"DISAMBIGUATION_MAX"`

	// Ledger oracle
	ORACLE_URL     string        `env:"BLOCKCHAIN_API_URL"`
	ORACLE_TIMEOUT time.Duration `env:"ORACLE_TIMEOUT"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTP_PORT:          envOr("HTTP_PORT", "8080"),
		DB_STRING:          os.Getenv("DB_STRING"),
		LOG_FORMAT:         envOr("LOG_FORMAT", "console"),
		LOG_LEVEL:          envOr("LOG_LEVEL", "info"),
		KAFKA_BROKERS:      envOr("KAFKA_BROKERS", "localhost:9092"),
		KAFKA_NOTIFY_TOPIC: envOr("KAFKA_NOTIFY_TOPIC", "shop.notifications"),
		KAFKA_CHECK_TOPIC:  envOr("KAFKA_CHECK_TOPIC", "shop.payment-checks"),
		KAFKA_GROUP_ID:     envOr("KAFKA_GROUP_ID", "btc-content-shop"),
		REDIS_ADDR:         envOr("REDIS_ADDR", "localhost:6379"),
		RECEIVING_ADDRESS:  strings.TrimSpace(os.Getenv("BITCOIN_WALLET")),
		FIAT_CURRENCY:      strings.ToUpper(envOr("FIAT_CURRENCY", "RUB")),
		ORACLE_URL:         strings.TrimRight(envOr("BLOCKCHAIN_API_URL", "https://blockchain.info/"), "/"),
	}

	var err error
	if cfg.OPERATOR_IDS, err = parseIDs(os.Getenv("ADMIN_IDS")); err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	if cfg.SESSION_TTL, err = durationOr("SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PAYMENT_DEADLINE, err = durationOr("PAYMENT_DEADLINE", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SWEEP_INTERVAL, err = durationOr("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RATE_FRESHNESS, err = durationOr("RATE_FRESHNESS", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.ORACLE_TIMEOUT, err = durationOr("ORACLE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.UNIT_MIN, err = intOr("DISAMBIGUATION_MIN", 1); err != nil {
		return nil, err
	}
	if cfg.UNIT_MAX, err = intOr("DISAMBIGUATION_MAX", 300); err != nil {
		return nil, err
	}

	cfg.FALLBACK_RATE = decimal.NewFromInt(3_000_000)
	if raw := os.Getenv("FALLBACK_RATE"); raw != "" {
		if cfg.FALLBACK_RATE, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("FALLBACK_RATE: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DB_STRING == "":
		return errors.New("DB_STRING is required")
	case c.RECEIVING_ADDRESS == "":
		return errors.New("BITCOIN_WALLET is required")
	case !c.FALLBACK_RATE.IsPositive():
		return errors.New("FALLBACK_RATE must be positive")
	case c.UNIT_MIN < 1 || c.UNIT_MAX < c.UNIT_MIN:
		return fmt.Errorf("invalid disambiguation range %d..%d", c.UNIT_MIN, c.UNIT_MAX)
	case c.PAYMENT_DEADLINE <= 0 || c.SWEEP_INTERVAL <= 0:
		return errors.New("PAYMENT_DEADLINE and SWEEP_INTERVAL must be positive")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intOr(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseIDs(csv string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
