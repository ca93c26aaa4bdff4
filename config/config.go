package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	WLOBaseURL            string        `mapstructure:"WLO_BASE_URL"`
	WLOTimeout            time.Duration `mapstructure:"WLO_TIMEOUT"`
	WLOMaxRetries         int           `mapstructure:"WLO_MAX_RETRIES"`
	MaxCandidates         int           `mapstructure:"MAX_CANDIDATES"`
	RateLimit             string        `mapstructure:"RATE_LIMIT"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	DetectionCacheTTL     time.Duration `mapstructure:"DETECTION_CACHE_TTL"`
	DetectionCacheMaxSize int           `mapstructure:"DETECTION_CACHE_MAX_SIZE"`
	AdminAPIKey           string        `mapstructure:"ADMIN_API_KEY"`
	ListenAddr            string        `mapstructure:"LISTEN_ADDR"`

	// Parsed from RateLimit during Load
	RateLimitCount  int           `mapstructure:"-"`
	RateLimitWindow time.Duration `mapstructure:"-"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("WLO_BASE_URL", "https://repository.staging.openeduhub.net/edu-sharing/rest")
	viper.SetDefault("WLO_TIMEOUT", 60)
	viper.SetDefault("WLO_MAX_RETRIES", 3)
	viper.SetDefault("MAX_CANDIDATES", 40)
	viper.SetDefault("RATE_LIMIT", "100/minute")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("DETECTION_CACHE_TTL", 3600)
	viper.SetDefault("DETECTION_CACHE_MAX_SIZE", 1000)
	viper.SetDefault("ADMIN_API_KEY", "")
	viper.SetDefault("LISTEN_ADDR", ":8000")

	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct", zap.Error(err))
	}

	// Convert seconds to proper time.Duration
	config.WLOTimeout = config.WLOTimeout * time.Second
	config.DetectionCacheTTL = config.DetectionCacheTTL * time.Second

	if config.WLOTimeout <= 0 {
		logger.Warn("WLO_TIMEOUT must be positive, using default", zap.Duration("fallback", 60*time.Second))
		config.WLOTimeout = 60 * time.Second
	}
	if config.WLOMaxRetries < 0 {
		config.WLOMaxRetries = 0
	}
	if config.MaxCandidates < 1 {
		logger.Warn("MAX_CANDIDATES must be positive, using default", zap.Int("fallback", 40))
		config.MaxCandidates = 40
	}

	// Documented ranges: TTL [60, 86400] seconds, size [10, 10000] entries
	config.DetectionCacheTTL = clampDuration(config.DetectionCacheTTL, 60*time.Second, 86400*time.Second)
	config.DetectionCacheMaxSize = clampInt(config.DetectionCacheMaxSize, 10, 10000)

	count, window, err := ParseRateLimit(config.RateLimit)
	if err != nil {
		logger.Warn("Invalid RATE_LIMIT, using default",
			zap.String("value", config.RateLimit),
			zap.Error(err))
		count, window = 100, time.Minute
	}
	config.RateLimitCount = count
	config.RateLimitWindow = window

	return &config
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseRateLimit parses "<N>/<window>" strings such as "100/minute".
func ParseRateLimit(s string) (int, time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("rate limit must be <N>/<window>, got %q", s)
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("rate limit count must be a positive integer, got %q", parts[0])
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("rate limit window must be second, minute or hour, got %q", parts[1])
	}

	return count, window, nil
}
