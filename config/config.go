package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	// DatabaseURL selects the Postgres store; empty runs the in-memory
	// store (development mode).
	DatabaseURL string

	// LockTimeout bounds lock waits during the checkout commit.
	LockTimeout time.Duration
}

func Load() Config {
	return Config{
		Addr:        getEnv("ADDR", ":8082"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LockTimeout: time.Duration(getEnvInt("LOCK_TIMEOUT_MS", 3000)) * time.Millisecond,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
