package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	OperatorIDs map[int64]bool

	// Backend
	BackendBaseURL string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// Status HTTP endpoint
	HTTPPort int

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string // text|json

	// Presence
	AccountIdentifier  string
	RosterStaleAfter   time.Duration
	RosterSweepEvery   time.Duration
	EnrichWorkers      int
	PlatformLevel      int
	GrantedPermissions string

	// Composer
	SuccessAdvanceDelay time.Duration
}

var (
	ErrMissingBotToken   = errors.New("BOT_TOKEN is required")
	ErrMissingBackendURL = errors.New("BACKEND_BASE_URL is required")
)

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// Backend
		BackendBaseURL: strings.TrimSuffix(getEnv("BACKEND_BASE_URL", ""), "/"),
		BackendAPIKey:  getEnv("BACKEND_API_KEY", ""),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),

		// Status HTTP endpoint
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./proxipay.db"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		// Presence
		AccountIdentifier:  getEnv("ACCOUNT_IDENTIFIER", ""),
		RosterStaleAfter:   getEnvDuration("ROSTER_STALE_AFTER", 30*time.Second),
		RosterSweepEvery:   getEnvDuration("ROSTER_SWEEP_EVERY", 5*time.Second),
		EnrichWorkers:      getEnvInt("ENRICH_WORKERS", 4),
		PlatformLevel:      getEnvInt("PLATFORM_LEVEL", 31),
		GrantedPermissions: getEnv("GRANTED_PERMISSIONS", "all"),

		// Composer
		SuccessAdvanceDelay: getEnvDuration("SUCCESS_ADVANCE_DELAY", 2*time.Second),
	}

	// Parse operator IDs
	cfg.OperatorIDs = make(map[int64]bool)
	for _, idStr := range strings.Split(getEnv("OPERATOR_IDS", ""), ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.OperatorIDs[id] = true
		}
	}

	return cfg
}

// Validate reports settings the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, ErrMissingBotToken)
	}
	if c.BackendBaseURL == "" {
		errs = append(errs, ErrMissingBackendURL)
	}
	return errors.Join(errs...)
}

// IsOperator reports whether userID may drive the console. An empty list
// allows nobody.
func (c *Config) IsOperator(userID int64) bool {
	return c.OperatorIDs[userID]
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
