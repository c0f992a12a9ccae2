package config

import (
	stderrors "errors"
	"testing"
	"time"

	"sjsage522/feedscanner/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "https://9gag.com", config.BaseURL)
	assert.Equal(t, BackendStatic, config.Backend)
	assert.Equal(t, "hot", config.Section)
	assert.Equal(t, 16, config.MaxPosts)
	assert.Equal(t, 500*time.Millisecond, config.ThrottleMean)
	assert.Equal(t, 10*time.Second, config.WaitTimeout)
	assert.Equal(t, 5, config.LocateAttempts)
	assert.Equal(t, 2*time.Second, config.SettleDelay)
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisStreamCount)
	assert.Equal(t, "localhost:11211", config.MemcacheAddr)
	assert.Equal(t, time.Duration(0), config.ScanInterval)
	assert.True(t, config.BrowserHeadless)
	require.NoError(t, config.Validate())

	// Test with environment variables
	t.Setenv("BASE_URL", "http://127.0.0.1:8080/")
	t.Setenv("BACKEND", "live")
	t.Setenv("MAX_POSTS", "-1")
	t.Setenv("THROTTLE_MEAN_MS", "0")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("FRESH", "true")
	t.Setenv("SCAN_INTERVAL_SECONDS", "30")
	t.Setenv("BROWSER_HEADLESS", "false")

	config = LoadConfig()
	assert.Equal(t, "http://127.0.0.1:8080", config.BaseURL)
	assert.Equal(t, BackendLive, config.Backend)
	assert.Equal(t, -1, config.MaxPosts)
	assert.Equal(t, time.Duration(0), config.ThrottleMean)
	assert.Equal(t, 1, config.RedisDB)
	assert.True(t, config.Fresh)
	assert.False(t, config.BrowserHeadless)
	assert.Equal(t, 30*time.Second, config.ScanInterval)
	require.NoError(t, config.Validate())
}

func TestLoadConfigIgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("LOCATE_ATTEMPTS", "many")
	assert.Equal(t, 5, LoadConfig().LocateAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "firefox" }},
		{"relative base url", func(c *Config) { c.BaseURL = "/9gag" }},
		{"empty section", func(c *Config) { c.Section = "  " }},
		{"no locate attempts", func(c *Config) { c.LocateAttempts = 0 }},
		{"zero wait timeout", func(c *Config) { c.WaitTimeout = 0 }},
		{"half credentials", func(c *Config) { c.Username = "someone" }},
		{"no streams", func(c *Config) { c.RedisStreamCount = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LoadConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
		})
	}
}

func TestHasCredentials(t *testing.T) {
	c := LoadConfig()
	assert.False(t, c.HasCredentials())
	c.Username, c.Password = "someone", "secret"
	assert.True(t, c.HasCredentials())
}
