package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBURL       string
	LogLevel    string
	DBMaxConns  int
	Currency    string
	LockTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load("config.env")

	maxConns := 8 // default
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			maxConns = parsed
		}
	}

	lockTimeout := 3 * time.Second
	if v := os.Getenv("LOCK_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			lockTimeout = time.Duration(parsed) * time.Millisecond
		}
	}

	currency := os.Getenv("WALLET_CURRENCY")
	if currency == "" {
		currency = "NGN"
	}

	return &Config{
		Port:     os.Getenv("APP_PORT"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		DBURL: fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		),
		DBMaxConns:  maxConns,
		Currency:    currency,
		LockTimeout: lockTimeout,
	}, nil
}
