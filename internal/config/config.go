// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	applog "household/internal/log"
)

// Role selects which settings Validate checks.
type Role string

const (
	RoleDevice Role = "device"
	RoleAPI    Role = "api"
)

// Remote backends a device can sync against.
const (
	BackendHTTP   = "http"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

var validBackends = []string{BackendHTTP, BackendSheets, BackendMemory}

type Config struct {
	// Device
	LocalDBPath       string
	RemoteBackend     string
	RemoteBaseURL     string
	SyncInterval      time.Duration
	RetryMax          int
	RetryBaseDelay    time.Duration
	PruneMissing      bool
	ProbeInterval     time.Duration
	DispatchQueueSize int

	// API
	Port               string
	LedgerDBPath       string
	RateLimitPerMinute int

	// AMQP (both roles, optional)
	AMQPURL      string
	AMQPExchange string

	// Google Sheets backend
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	OAuthRedirectPort        string

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		LocalDBPath:       getEnv("LOCAL_DB_PATH", "./data/household.db"),
		RemoteBackend:     getEnv("REMOTE_BACKEND", BackendHTTP),
		RemoteBaseURL:     getEnv("REMOTE_BASE_URL", "http://localhost:8081"),
		SyncInterval:      getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		RetryMax:          getEnvInt("RETRY_MAX", 3),
		RetryBaseDelay:    getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		PruneMissing:      getEnvBool("PRUNE_MISSING", false),
		ProbeInterval:     getEnvDuration("PROBE_INTERVAL", 10*time.Second),
		DispatchQueueSize: getEnvInt("DISPATCH_QUEUE_SIZE", 64),

		Port:               getEnv("PORT", "8081"),
		LedgerDBPath:       getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "household.changes"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Ledger"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		OAuthRedirectPort:        getEnv("OAUTH_REDIRECT_PORT", "8085"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks the settings role needs and reports every problem at once.
func (c *Config) Validate(role Role) error {
	var errs []string

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	switch role {
	case RoleDevice:
		errs = append(errs, c.validateDevice()...)
	case RoleAPI:
		errs = append(errs, c.validateAPI()...)
	default:
		errs = append(errs, fmt.Sprintf("unknown role '%s'", role))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (c *Config) validateDevice() []string {
	var errs []string

	errs = append(errs, checkDBPath("local database", c.LocalDBPath)...)

	if !slices.Contains(validBackends, c.RemoteBackend) {
		errs = append(errs, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	switch c.RemoteBackend {
	case BackendHTTP:
		if u, err := url.Parse(c.RemoteBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid remote base URL '%s': must be an http(s) URL", c.RemoteBaseURL))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "GOOGLE_SPREADSHEET_ID is required for the sheets backend")
		}
		serviceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
		oauthClient := (c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != "") && c.GoogleOAuthTokenFile != ""
		if !serviceAccount && !oauthClient {
			errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE, or an OAuth client with GOOGLE_OAUTH_TOKEN_FILE, must be provided for the sheets backend")
		}
		for _, f := range []struct{ what, path string }{
			{"service account file", c.GoogleServiceAccountFile},
			{"OAuth client file", c.GoogleOAuthClientFile},
			{"OAuth token file", c.GoogleOAuthTokenFile},
		} {
			if f.path == "" {
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("%s does not exist: %s", f.what, f.path))
			}
		}
	}

	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.RetryMax < 0 || c.RetryMax > 10 {
		errs = append(errs, fmt.Sprintf("invalid retry max %d: must be between 0 and 10", c.RetryMax))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Sprintf("invalid retry base delay %v: must be positive", c.RetryBaseDelay))
	}
	if c.ProbeInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	}
	if c.DispatchQueueSize < 1 || c.DispatchQueueSize > 10000 {
		errs = append(errs, fmt.Sprintf("invalid dispatch queue size %d: must be between 1 and 10000", c.DispatchQueueSize))
	}
	return errs
}

func (c *Config) validateAPI() []string {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errs = append(errs, checkDBPath("ledger database", c.LedgerDBPath)...)

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	return errs
}

// checkDBPath creates the parent directory of path if needed.
func checkDBPath(what, path string) []string {
	if path == "" {
		return []string{what + " path cannot be empty"}
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return []string{fmt.Sprintf("cannot create %s directory '%s': %v", what, dir, err)}
		}
	}
	return nil
}

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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
