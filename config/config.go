package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/feedscanner/pkg/errors"
)

// Backend names accepted by BACKEND and --backend
const (
	BackendStatic = "static"
	BackendLive   = "live"
)

// Config represents the application configuration
type Config struct {
	// Feed configuration
	BaseURL  string
	Backend  string
	Section  string
	Fresh    bool
	MaxPosts int

	// Pacing and waits
	ThrottleMean      time.Duration
	WaitTimeout       time.Duration
	LocateAttempts    int
	SettleDelay       time.Duration
	LoginOverlayDelay time.Duration
	HTTPTimeout       time.Duration

	// Selector catalog override (empty = embedded default)
	SelectorCatalog string

	// Live browser configuration
	BrowserBin        string
	BrowserHeadless   bool
	BrowserControlURL string

	// Static client configuration
	CloudflareBypass bool
	ProxyURL         string
	ProxyListURL     string

	// Credentials for authenticated actions
	Username string
	Password string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string
	BlockTime    time.Duration

	// Post archive
	SQLitePath string

	// Worker configuration
	ScanInterval time.Duration
	ScanErrorLog string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		BaseURL:  strings.TrimRight(getEnv("BASE_URL", "https://9gag.com"), "/"),
		Backend:  getEnv("BACKEND", BackendStatic),
		Section:  getEnv("SECTION", "hot"),
		Fresh:    getEnvBool("FRESH", false),
		MaxPosts: getEnvInt("MAX_POSTS", 16),

		ThrottleMean:      getEnvMillis("THROTTLE_MEAN_MS", 500),
		WaitTimeout:       getEnvSeconds("WAIT_TIMEOUT_SECONDS", 10),
		LocateAttempts:    getEnvInt("LOCATE_ATTEMPTS", 5),
		SettleDelay:       getEnvMillis("SETTLE_DELAY_MS", 2000),
		LoginOverlayDelay: getEnvMillis("LOGIN_OVERLAY_DELAY_MS", 1000),
		HTTPTimeout:       getEnvSeconds("HTTP_TIMEOUT_SECONDS", 10),

		SelectorCatalog: getEnv("SELECTOR_CATALOG", ""),

		BrowserBin:        getEnv("BROWSER_BIN", ""),
		BrowserHeadless:   getEnvBool("BROWSER_HEADLESS", true),
		BrowserControlURL: getEnv("BROWSER_CONTROL_URL", ""),

		CloudflareBypass: getEnvBool("CLOUDFLARE_BYPASS", false),
		ProxyURL:         getEnv("PROXY_URL", ""),
		ProxyListURL:     getEnv("PROXY_LIST_URL", ""),

		Username: getEnv("NINEGAG_USERNAME", ""),
		Password: getEnv("NINEGAG_PASSWORD", ""),

		RedisAddr:            getEnvAllowEmpty("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "posts"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),

		MemcacheAddr: getEnvAllowEmpty("MEMCACHE_ADDR", "localhost:11211"),
		BlockTime:    getEnvSeconds("BLOCK_TIME_SECONDS", 600),

		SQLitePath: getEnv("SQLITE_PATH", ""),

		ScanInterval: getEnvSeconds("SCAN_INTERVAL_SECONDS", 0),
		ScanErrorLog: getEnv("SCAN_ERROR_LOG", "scan_errors.log"),

		Environment: getEnv("FEEDSCANNER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the scanner cannot run with
func (c *Config) Validate() error {
	if c.Backend != BackendStatic && c.Backend != BackendLive {
		return errors.NewConfiguration("backend must be \"static\" or \"live\", got "+strconv.Quote(c.Backend), nil)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewConfiguration("base url must be absolute", err)
	}
	if strings.TrimSpace(c.Section) == "" {
		return errors.NewConfiguration("section must not be empty", nil)
	}
	if c.LocateAttempts < 1 {
		return errors.NewConfiguration("locate attempts must be at least 1", nil)
	}
	if c.WaitTimeout <= 0 {
		return errors.NewConfiguration("wait timeout must be positive", nil)
	}
	if c.ThrottleMean < 0 {
		return errors.NewConfiguration("throttle mean must not be negative", nil)
	}
	if c.RedisStreamCount < 1 {
		return errors.NewConfiguration("redis stream count must be at least 1", nil)
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.NewConfiguration("username and password must be set together", nil)
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return errors.NewConfiguration("invalid proxy url", err)
		}
	}
	return nil
}

// HasCredentials reports whether login credentials are configured
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAllowEmpty is getEnv where a variable set to "" disables the service
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
