package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "GigWallet"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultCurrency         = "USD"
	defaultFeeThreshold     = int64(-2_000)
	defaultCooldownHours    = 24
	defaultLedgerRetries    = 3
	defaultWithdrawPerHour  = 10
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	feeThresholdEnvVar      = "DEFAULT_FEE_THRESHOLD"
	cooldownHoursEnvVar     = "WITHDRAWAL_COOLDOWN_HOURS"
	ledgerRetriesEnvVar     = "LEDGER_MAX_RETRIES"
	withdrawPerHourEnvVar   = "WITHDRAW_RATE_LIMIT_PER_HOUR"
	callbackTokenHashEnvVar = "CALLBACK_TOKEN_HASH"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	// DefaultCurrency, DefaultFeeThreshold and DefaultCooldownHours seed
	// newly provisioned wallets. The threshold is the most negative a fee
	// balance may go before new paid jobs are blocked, in minor units.
	DefaultCurrency      string
	DefaultFeeThreshold  int64
	DefaultCooldownHours int

	// LedgerMaxRetries bounds internal retries on serialization conflicts.
	LedgerMaxRetries int

	// CallbackTokenHash is the bcrypt hash of the shared secret collaborator
	// systems present on /internal routes. Empty disables the guard (dev only).
	CallbackTokenHash string

	WithdrawRatePerHour int
	ShutdownPeriod      time.Duration
	IdempotencyTTL      time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               getEnv("APP_ENV", defaultAppEnv),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", defaultCurrency),
		DefaultFeeThreshold:  defaultFeeThreshold,
		DefaultCooldownHours: defaultCooldownHours,
		LedgerMaxRetries:     defaultLedgerRetries,
		CallbackTokenHash:    os.Getenv(callbackTokenHashEnvVar),
		WithdrawRatePerHour:  defaultWithdrawPerHour,
		ShutdownPeriod:       defaultShutdownDelay,
		IdempotencyTTL:       defaultIdempotencyTTL,
	}

	if v := os.Getenv(feeThresholdEnvVar); v != "" {
		threshold, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", feeThresholdEnvVar, err)
		}
		if threshold > 0 {
			return Config{}, fmt.Errorf("%s must be zero or negative", feeThresholdEnvVar)
		}
		cfg.DefaultFeeThreshold = threshold
	}

	if v := os.Getenv(cooldownHoursEnvVar); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", cooldownHoursEnvVar, v)
		}
		cfg.DefaultCooldownHours = hours
	}

	if v := os.Getenv(ledgerRetriesEnvVar); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil || retries < 1 {
			return Config{}, fmt.Errorf("invalid %s: %q", ledgerRetriesEnvVar, v)
		}
		cfg.LedgerMaxRetries = retries
	}

	if v := os.Getenv(withdrawPerHourEnvVar); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return Config{}, fmt.Errorf("invalid %s: %q", withdrawPerHourEnvVar, v)
		}
		cfg.WithdrawRatePerHour = limit
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.CallbackTokenHash == "" {
			return Config{}, fmt.Errorf("%s must be set when APP_ENV=%s", callbackTokenHashEnvVar, cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment, where the
// in-memory backends and unguarded callbacks are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
