package config

import (
	"os"
	"strconv"
	"time"
)

type WalletConfig struct {
	MaxDepositAmount int64 // cents, per single deposit
	BalanceCacheTTL  time.Duration
	TicketTTL        time.Duration
	Currency         string
}

func LoadWalletConfig() *WalletConfig {
	return &WalletConfig{
		MaxDepositAmount: getEnvAsInt64("WALLET_MAX_DEPOSIT", 1_000_000),
		BalanceCacheTTL:  getEnvAsDuration("WALLET_BALANCE_CACHE_TTL", 30*time.Second),
		TicketTTL:        getEnvAsDuration("TICKET_TTL", 24*time.Hour),
		Currency:         getEnv("WALLET_CURRENCY", "USD"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
