package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the backend. DATABASE_URL is optional:
// without it the server runs on the in-memory store.
type Config struct {
	Port        string
	DatabaseURL string
	AllowOrigins []string

	CountdownSeconds    int
	CallIntervalSeconds int
	MaxTickets          int
	PacingMode          string // "interval" or "signal"

	LockTTL      time.Duration
	LockTimeout  time.Duration
	TxMaxRetries int
}

// Load reads .env plus the environment and fills in defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, reading environment variables")
	}

	return &Config{
		Port:                getenv("PORT", "4000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AllowOrigins:        strings.Split(getenv("ALLOW_ORIGINS", "http://localhost:3000"), ","),
		CountdownSeconds:    getenvInt("COUNTDOWN_SECONDS", 30),
		CallIntervalSeconds: getenvInt("CALL_INTERVAL_SECONDS", 6),
		MaxTickets:          getenvInt("MAX_TICKETS", 120),
		PacingMode:          getenv("PACING_MODE", "interval"),
		LockTTL:             getenvDuration("LOCK_TTL", 60*time.Second),
		LockTimeout:         getenvDuration("LOCK_TIMEOUT", 10*time.Second),
		TxMaxRetries:        getenvInt("TX_MAX_RETRIES", 5),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
