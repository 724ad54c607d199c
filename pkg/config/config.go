package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Analytics core
	Analytics AnalyticsConfig

	// Worker (background normalization)
	Worker WorkerConfig

	// Refresh (watch mode)
	Refresh RefreshConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// AnalyticsConfig holds computation defaults
type AnalyticsConfig struct {
	DefaultCapital float64 // 월별 자본 기준이 없을 때 사용
	XIRRCacheSize  int     // XIRR 결과 LRU 용량
	RiskFreeRate   float64 // 연 무위험 수익률 (0.03 = 3%)
	PeriodsPerYear int     // 수익률 시계열 주기 (월별 = 12)
	Timezone       string
}

// WorkerConfig holds offload settings for trade normalization
type WorkerConfig struct {
	OffloadThreshold int // 거래 수가 이 값을 넘으면 백그라운드 워커 사용
	Concurrency      int // 0이면 워커 비활성 (동기 경로만 사용)
	ChunkSize        int
}

// RefreshConfig holds watch-mode settings
type RefreshConfig struct {
	Schedule   string // cron 표현식 (예: "@every 1m")
	TradesFile string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Analytics: AnalyticsConfig{
			DefaultCapital: getEnvAsFloat("DEFAULT_CAPITAL", 100000),
			XIRRCacheSize:  getEnvAsInt("XIRR_CACHE_SIZE", 2000),
			RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0),
			PeriodsPerYear: getEnvAsInt("PERIODS_PER_YEAR", 12),
			Timezone:       getEnv("TIMEZONE", "UTC"),
		},

		Worker: WorkerConfig{
			OffloadThreshold: getEnvAsInt("OFFLOAD_THRESHOLD", 50),
			Concurrency:      getEnvAsInt("WORKER_CONCURRENCY", 4),
			ChunkSize:        getEnvAsInt("WORKER_CHUNK_SIZE", 25),
		},

		Refresh: RefreshConfig{
			Schedule:   getEnv("REFRESH_SCHEDULE", "@every 1m"),
			TradesFile: getEnv("TRADES_FILE", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration Load would produce with an empty environment
func Default() *Config {
	return &Config{
		Env: "development",
		Analytics: AnalyticsConfig{
			DefaultCapital: 100000,
			XIRRCacheSize:  2000,
			PeriodsPerYear: 12,
			Timezone:       "UTC",
		},
		Worker: WorkerConfig{
			OffloadThreshold: 50,
			Concurrency:      4,
			ChunkSize:        25,
		},
		Refresh: RefreshConfig{
			Schedule: "@every 1m",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Location returns the configured timezone, UTC on failure
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if !(c.Analytics.DefaultCapital > 0) {
		return fmt.Errorf("DEFAULT_CAPITAL must be > 0")
	}

	if c.Analytics.XIRRCacheSize <= 0 {
		return fmt.Errorf("XIRR_CACHE_SIZE must be > 0")
	}

	if c.Analytics.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be > 0")
	}

	if c.Worker.OffloadThreshold < 0 {
		return fmt.Errorf("OFFLOAD_THRESHOLD must be >= 0")
	}

	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
