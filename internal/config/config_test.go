package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost/pasar",
		"REDIS_URL":    "redis://localhost:6379",
		"PORT":         "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "X-Customer-ID", cfg.CustomerHeader)
	require.Equal(t, "X-Store-ID", cfg.StoreHeader)
	require.Equal(t, "USD", cfg.DefaultCurrency)
	require.Equal(t, 30, cfg.PreviewRateMax)
	require.Equal(t, time.Minute, cfg.PreviewRateWindow)
	require.True(t, cfg.MigrateOnStart)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379",
	})
	require.Error(t, err)
}

func TestLoadParsesOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":        "postgres://localhost/pasar",
		"REDIS_URL":           "redis://localhost:6379",
		"PREVIEW_RATE_MAX":    "5",
		"PREVIEW_RATE_WINDOW": "30s",
		"CORS_ALLOWED_ORIGINS": "https://a.test, https://b.test",
	})
	require.NoError(t, err)
	require.Equal(t, 5, cfg.PreviewRateMax)
	require.Equal(t, 30*time.Second, cfg.PreviewRateWindow)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
}
