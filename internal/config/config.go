// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// WindowMode selects how the velocity window boundary is computed.
type WindowMode string

const (
	// WindowCalendar resets velocity counters at local midnight, matching
	// the legacy daily-limit semantics.
	WindowCalendar WindowMode = "calendar"
	// WindowRolling uses a rolling 24-hour window anchored on the first
	// transaction of the window.
	WindowRolling WindowMode = "rolling"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Reference data
	BlacklistPath  string
	PolicyPath     string
	RefdataReload  time.Duration

	// Velocity limits
	DailyAmountCap   decimal.Decimal
	DailyCountCap    int
	VelocityWindow   WindowMode
	VelocityTimezone string
	// GeoMinInterval is the minimum plausible elapsed time between two
	// transactions from materially different locations.
	GeoMinInterval time.Duration

	// Fraud scoring. Weights and thresholds are configuration, not code:
	// the evidenced boundaries are partial and must stay tunable.
	FraudThreshold  decimal.Decimal
	WeightAmount    decimal.Decimal
	WeightCategory  decimal.Decimal
	WeightGeo       decimal.Decimal
	WeightTimeOfDay decimal.Decimal
	AmountFloor     decimal.Decimal // score ramp start
	AmountCeil      decimal.Decimal // score ramp end
	RiskyCategories []string        // category codes that raise the category factor
	NightStartHour  int             // inclusive, local hour
	NightEndHour    int             // exclusive, local hour

	// Concurrency
	LockWait time.Duration // bounded wait for the per-account section

	// Security
	RateLimitRPM  int
	WebhookSecret string
	// OpsAPIKeys guard the operational write surface (account seeding,
	// subscription management). Empty means open (development mode).
	OpsAPIKeys []string

	// Observability
	OTLPEndpoint string
}

// Defaults.
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultDailyAmountCap = "10000.00"
	DefaultDailyCountCap  = 50
	DefaultFraudThreshold = "0.70"
	DefaultLockWaitMS     = 250
	DefaultRateLimitRPM   = 600
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", DefaultPort),
		Env:       getEnv("ENV", DefaultEnv),
		LogLevel:  getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set

		BlacklistPath: getEnv("BLACKLIST_PATH", "refdata/blacklist.yaml"),
		PolicyPath:    getEnv("POLICY_PATH", "refdata/policy.yaml"),
		RefdataReload: getEnvDuration("REFDATA_RELOAD_INTERVAL", 5*time.Minute),

		DailyAmountCap:   getEnvDecimal("DAILY_AMOUNT_CAP", DefaultDailyAmountCap),
		DailyCountCap:    getEnvInt("DAILY_COUNT_CAP", DefaultDailyCountCap),
		VelocityWindow:   WindowMode(getEnv("VELOCITY_WINDOW", string(WindowCalendar))),
		VelocityTimezone: getEnv("VELOCITY_TIMEZONE", "UTC"),
		GeoMinInterval:   getEnvDuration("GEO_MIN_INTERVAL", time.Hour),

		FraudThreshold:  getEnvDecimal("FRAUD_THRESHOLD", DefaultFraudThreshold),
		WeightAmount:    getEnvDecimal("FRAUD_WEIGHT_AMOUNT", "0.35"),
		WeightCategory:  getEnvDecimal("FRAUD_WEIGHT_CATEGORY", "0.25"),
		WeightGeo:       getEnvDecimal("FRAUD_WEIGHT_GEO", "0.25"),
		WeightTimeOfDay: getEnvDecimal("FRAUD_WEIGHT_TIME_OF_DAY", "0.15"),
		AmountFloor:     getEnvDecimal("FRAUD_AMOUNT_FLOOR", "1000.00"),
		AmountCeil:      getEnvDecimal("FRAUD_AMOUNT_CEIL", "5000.00"),
		RiskyCategories: getEnvList("FRAUD_RISKY_CATEGORIES", "6011,4829"),
		NightStartHour:  getEnvInt("FRAUD_NIGHT_START_HOUR", 1),
		NightEndHour:    getEnvInt("FRAUD_NIGHT_END_HOUR", 5),

		LockWait: getEnvDuration("LOCK_WAIT", DefaultLockWaitMS*time.Millisecond),

		RateLimitRPM:  getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		OpsAPIKeys:    getEnvList("OPS_API_KEYS", ""),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.VelocityWindow != WindowCalendar && c.VelocityWindow != WindowRolling {
		return fmt.Errorf("VELOCITY_WINDOW must be %q or %q, got %q", WindowCalendar, WindowRolling, c.VelocityWindow)
	}
	if _, err := time.LoadLocation(c.VelocityTimezone); err != nil {
		return fmt.Errorf("VELOCITY_TIMEZONE: %w", err)
	}
	if c.DailyAmountCap.Sign() <= 0 {
		return fmt.Errorf("DAILY_AMOUNT_CAP must be positive")
	}
	if c.DailyCountCap <= 0 {
		return fmt.Errorf("DAILY_COUNT_CAP must be positive")
	}
	if c.FraudThreshold.Sign() <= 0 {
		return fmt.Errorf("FRAUD_THRESHOLD must be positive")
	}
	if c.AmountCeil.Cmp(c.AmountFloor) <= 0 {
		return fmt.Errorf("FRAUD_AMOUNT_CEIL must exceed FRAUD_AMOUNT_FLOOR")
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 || c.NightEndHour < 0 || c.NightEndHour > 23 {
		return fmt.Errorf("fraud night hours must be 0-23")
	}
	if c.LockWait <= 0 {
		return fmt.Errorf("LOCK_WAIT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}
