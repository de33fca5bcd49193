package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SITE_ID", "")
	t.Setenv("CHECKPOINT_RATE", "")

	cfg := FromEnv()
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "local", cfg.SiteID)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.True(t, cfg.EnableLocalAuth)
	assert.Equal(t, 1.0, cfg.CheckpointRate)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, cfg.CORSOriginsOffline, cfg.CORSOrigins())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("CHECKPOINT_BURST", "9")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("METRICS_ENABLED", "no")
	t.Setenv("ENABLE_LOCAL_AUTH", "")

	cfg := FromEnv()
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.False(t, cfg.EnableLocalAuth)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 9, cfg.CheckpointBurst)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}
