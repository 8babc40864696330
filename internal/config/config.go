// Package config builds the process configuration once at startup. The
// resulting Config is passed by pointer to every component.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultListenAddr        = ":8080"
	defaultFrontendURL       = "http://localhost:3000"
	defaultSQLitePath        = "calplan.db"
	defaultCalDAVURL         = "https://caldav.icloud.com/"
)

// Config is the full runtime configuration.
type Config struct {
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleTokenURL     string
	GoogleUserInfoURL  string

	FrontendURL string
	CORSOrigins []string
	StateSecret string
	ListenAddr  string

	LogLevel string
	LogFile  string

	// RedisAddr enables the cross-process sync lock when set.
	RedisAddr string
	// SyncLockTTL bounds how long a crashed holder keeps the Redis lock.
	SyncLockTTL time.Duration

	TokenRefreshSkew time.Duration
	SyncDaysBack     int
	SyncDaysForward  int
	ProviderTimeout  time.Duration

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration through lookup, applying defaults.
func Load(lookup LookupFunc) (*Config, error) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	cfg := &Config{
		DatabaseURL:        get("BACKEND_DATABASE_URL", "DATABASE_URL"),
		DatabaseDriver:     get("DATABASE_DRIVER"),
		SQLitePath:         orDefault(get("SQLITE_PATH"), defaultSQLitePath),
		GoogleClientID:     get("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: get("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:  get("GOOGLE_REDIRECT_URI", "GOOGLE_REDIRECT_URL"),
		GoogleTokenURL:     orDefault(get("GOOGLE_TOKEN_URL"), defaultGoogleTokenURL),
		GoogleUserInfoURL:  orDefault(get("GOOGLE_USERINFO_URL"), defaultGoogleUserInfoURL),
		FrontendURL:        strings.TrimSuffix(orDefault(get("FRONTEND_URL"), defaultFrontendURL), "/"),
		StateSecret:        get("STATE_SECRET"),
		ListenAddr:         orDefault(get("LISTEN_ADDR"), defaultListenAddr),
		LogLevel:           orDefault(get("LOG_LEVEL"), "info"),
		LogFile:            get("LOG_FILE"),
		RedisAddr:          get("REDIS_ADDR"),
		CalDAVURL:          orDefault(get("CALDAV_URL"), defaultCalDAVURL),
		CalDAVUsername:     get("CALDAV_USERNAME", "ICLOUD_USERNAME"),
		CalDAVPassword:     get("CALDAV_PASSWORD", "ICLOUD_APP_SPECIFIC_PASSWORD"),
		CalDAVCalendar:     get("CALDAV_CALENDAR", "ICLOUD_CALENDAR_NAME"),
	}

	if origins := get("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	} else {
		cfg.CORSOrigins = []string{cfg.FrontendURL}
	}

	var err error
	if cfg.TokenRefreshSkew, err = durationOr(get("TOKEN_REFRESH_SKEW"), 5*time.Minute); err != nil {
		return nil, fmt.Errorf("TOKEN_REFRESH_SKEW: %w", err)
	}
	if cfg.ProviderTimeout, err = durationOr(get("PROVIDER_TIMEOUT"), 30*time.Second); err != nil {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT: %w", err)
	}
	if cfg.SyncLockTTL, err = durationOr(get("SYNC_LOCK_TTL"), 10*time.Minute); err != nil {
		return nil, fmt.Errorf("SYNC_LOCK_TTL: %w", err)
	}
	if cfg.SyncDaysBack, err = intOr(get("SYNC_DAYS_BACK"), 30); err != nil {
		return nil, fmt.Errorf("SYNC_DAYS_BACK: %w", err)
	}
	if cfg.SyncDaysForward, err = intOr(get("SYNC_DAYS_FORWARD"), 90); err != nil {
		return nil, fmt.Errorf("SYNC_DAYS_FORWARD: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would only fail later and less clearly.
func (c *Config) Validate() error {
	if c.TokenRefreshSkew < 0 {
		return errors.New("token refresh skew must not be negative")
	}
	if c.SyncLockTTL <= 0 {
		return errors.New("sync lock TTL must be positive")
	}
	if c.SyncDaysBack < 0 || c.SyncDaysForward < 0 {
		return errors.New("sync window must not be negative")
	}
	if c.SyncDaysBack+c.SyncDaysForward == 0 {
		return errors.New("sync window must not be empty")
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "", "sqlite", "sqlite3", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	return nil
}

// GoogleConfigured reports whether OAuth credentials are present.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func intOr(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
