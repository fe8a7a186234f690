package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":6666", cfg.ListenAddr)
	assert.Empty(t, cfg.ValkeyAddr)
	assert.Equal(t, "*", cfg.AllowedOrigin)
	assert.Equal(t, 2*time.Second, cfg.PingInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("VALKEY_ADDR", "127.0.0.1:6379")
	t.Setenv("PING_INTERVAL", "500ms")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:6379", cfg.ValkeyAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.PingInterval)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("PING_INTERVAL", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.PingInterval)
}
