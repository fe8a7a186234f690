package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the process-level settings, sourced from the environment.
type Config struct {
	ListenAddr        string        // address the HTTP server binds to
	ValkeyAddr        string        // Valkey address for the user store; empty = in-memory
	AllowedOrigin     string        // CORS origin for the REST surface
	PingInterval      time.Duration // liveness probe period
	ReconcileInterval time.Duration // stale-scene sweep period
}

// Load reads a .env file if one is present, then the process environment.
// Missing values fall back to defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] No .env file found, using process environment")
	}

	return Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":6666"),
		ValkeyAddr:        os.Getenv("VALKEY_ADDR"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "*"),
		PingInterval:      getDuration("PING_INTERVAL", 2*time.Second),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[Config] Invalid duration %q for %s, using %s", v, key, fallback)
		return fallback
	}
	return d
}
