package charterd

import (
	"fmt"
	"strings"
	"time"
)

// Calendar backends selectable with CalendarBackend.
const (
	CalendarBackendGorm     = "gorm"
	CalendarBackendPostgres = "postgres"
	CalendarBackendRedis    = "redis"
)

const (
	defaultListenAddr        = ":8080"
	defaultHealthListenAddr  = ":7070"
	defaultDatabaseURL       = "sqlite:///tmp/charterbook.db"
	defaultAllowedOrigin     = "http://localhost:8000"
	defaultSessionIssuer     = "tauth"
	defaultSessionCookie     = "app_session"
	defaultRedisKeyPrefix    = "charterbook"
	defaultHoldTTL           = 15 * time.Minute
	minHoldTTL               = time.Minute
	maxHoldTTL               = 2 * time.Hour
	defaultSweepInterval     = 30 * time.Second
	defaultAlertScanInterval = 5 * time.Minute
	minAlertScanInterval     = 10 * time.Second
	defaultOfferWindow       = 30 * time.Minute
	defaultHealthInterval    = 15 * time.Second
	defaultRequestTimeout    = 5 * time.Second
	defaultPaymentTimeout    = 5 * time.Second
	defaultPaymentAttempts   = 3
	maxPaymentAttempts       = 10
	defaultPaymentBackoff    = 200 * time.Millisecond
)

// Config aggregates runtime settings for the reservation daemon.
type Config struct {
	ListenAddr        string
	HealthListenAddr  string
	DatabaseURL       string
	CalendarBackend   string
	CalendarURL       string
	RedisKeyPrefix    string
	AMQPURL           string
	PaymentBaseURL    string
	PaymentAPIKey     string
	PaymentReturnURL  string
	PaymentTimeout    time.Duration
	PaymentAttempts   int
	PaymentBackoff    time.Duration
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	ServiceToken      string
	RequestTimeout    time.Duration
	HoldTTL           time.Duration
	SweepInterval     time.Duration
	OfferWindow       time.Duration
	AlertScanInterval time.Duration
	HealthInterval    time.Duration
}

// Validate applies defaults and rejects values the engine cannot run with.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.HealthListenAddr = defaultIfEmpty(cfg.HealthListenAddr, defaultHealthListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.CalendarBackend = strings.ToLower(defaultIfEmpty(cfg.CalendarBackend, CalendarBackendGorm))
	cfg.RedisKeyPrefix = defaultIfEmpty(cfg.RedisKeyPrefix, defaultRedisKeyPrefix)
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.HoldTTL == 0 {
		cfg.HoldTTL = defaultHoldTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.OfferWindow == 0 {
		cfg.OfferWindow = defaultOfferWindow
	}
	if cfg.AlertScanInterval == 0 {
		cfg.AlertScanInterval = defaultAlertScanInterval
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PaymentTimeout == 0 {
		cfg.PaymentTimeout = defaultPaymentTimeout
	}
	if cfg.PaymentAttempts == 0 {
		cfg.PaymentAttempts = defaultPaymentAttempts
	}
	if cfg.PaymentBackoff == 0 {
		cfg.PaymentBackoff = defaultPaymentBackoff
	}

	switch cfg.CalendarBackend {
	case CalendarBackendGorm:
	case CalendarBackendPostgres:
		cfg.CalendarURL = defaultIfEmpty(cfg.CalendarURL, cfg.DatabaseURL)
		if !isPostgresURL(cfg.CalendarURL) {
			return fmt.Errorf("calendar url must be a postgres url for the %s backend", CalendarBackendPostgres)
		}
	case CalendarBackendRedis:
		if strings.TrimSpace(cfg.CalendarURL) == "" {
			return fmt.Errorf("calendar url is required for the %s backend", CalendarBackendRedis)
		}
	default:
		return fmt.Errorf("unsupported calendar backend %q", cfg.CalendarBackend)
	}
	if cfg.HoldTTL < minHoldTTL || cfg.HoldTTL > maxHoldTTL {
		return fmt.Errorf("hold ttl must be between %s and %s", minHoldTTL, maxHoldTTL)
	}
	if cfg.SweepInterval <= 0 || cfg.SweepInterval > cfg.HoldTTL {
		return fmt.Errorf("sweep interval must be positive and not longer than the hold ttl")
	}
	if cfg.OfferWindow <= 0 {
		return fmt.Errorf("offer window must be positive")
	}
	if cfg.AlertScanInterval < minAlertScanInterval {
		return fmt.Errorf("alert scan interval must be at least %s", minAlertScanInterval)
	}
	if cfg.HealthInterval <= 0 || cfg.RequestTimeout <= 0 || cfg.PaymentTimeout <= 0 || cfg.PaymentBackoff < 0 {
		return fmt.Errorf("timeouts and intervals must be positive")
	}
	if cfg.PaymentAttempts < 1 || cfg.PaymentAttempts > maxPaymentAttempts {
		return fmt.Errorf("payment attempts must be between 1 and %d", maxPaymentAttempts)
	}
	if strings.TrimSpace(cfg.PaymentBaseURL) == "" {
		return fmt.Errorf("payment base url is required")
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if strings.TrimSpace(cfg.ServiceToken) == "" {
		return fmt.Errorf("service token is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
