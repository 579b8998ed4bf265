package charterd

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		PaymentBaseURL:    "https://payments.example.com",
		SessionSigningKey: "secret-key",
		ServiceToken:      "service-token",
	}
}

func TestConfigValidateAppliesDefaults(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		test.Fatalf("expected valid config, got %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.HealthListenAddr != defaultHealthListenAddr {
		test.Fatalf("unexpected listen addresses: %q %q", cfg.ListenAddr, cfg.HealthListenAddr)
	}
	if cfg.HoldTTL != 15*time.Minute || cfg.SweepInterval != defaultSweepInterval {
		test.Fatalf("unexpected hold defaults: %s %s", cfg.HoldTTL, cfg.SweepInterval)
	}
	if cfg.CalendarBackend != CalendarBackendGorm || cfg.DatabaseURL != defaultDatabaseURL {
		test.Fatalf("unexpected storage defaults: %q %q", cfg.CalendarBackend, cfg.DatabaseURL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.SessionCookieName != defaultSessionCookie || cfg.PaymentAttempts != defaultPaymentAttempts {
		test.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidateRejectsBadValues(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{name: "hold ttl too short", mutate: func(cfg *Config) { cfg.HoldTTL = 30 * time.Second }, message: "hold ttl"},
		{name: "hold ttl too long", mutate: func(cfg *Config) { cfg.HoldTTL = 3 * time.Hour }, message: "hold ttl"},
		{name: "sweep longer than ttl", mutate: func(cfg *Config) { cfg.HoldTTL = 2 * time.Minute; cfg.SweepInterval = 5 * time.Minute }, message: "sweep interval"},
		{name: "negative offer window", mutate: func(cfg *Config) { cfg.OfferWindow = -time.Minute }, message: "offer window"},
		{name: "scan too frequent", mutate: func(cfg *Config) { cfg.AlertScanInterval = time.Second }, message: "alert scan"},
		{name: "payment attempts", mutate: func(cfg *Config) { cfg.PaymentAttempts = 11 }, message: "payment attempts"},
		{name: "missing payment url", mutate: func(cfg *Config) { cfg.PaymentBaseURL = " " }, message: "payment base url"},
		{name: "missing signing key", mutate: func(cfg *Config) { cfg.SessionSigningKey = "" }, message: "signing key"},
		{name: "missing service token", mutate: func(cfg *Config) { cfg.ServiceToken = "" }, message: "service token"},
		{name: "unknown backend", mutate: func(cfg *Config) { cfg.CalendarBackend = "etcd" }, message: "unsupported calendar backend"},
		{name: "redis without url", mutate: func(cfg *Config) { cfg.CalendarBackend = CalendarBackendRedis }, message: "calendar url"},
		{name: "postgres backend over sqlite", mutate: func(cfg *Config) { cfg.CalendarBackend = CalendarBackendPostgres }, message: "postgres url"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cfg := validConfig()
			testCase.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				test.Fatalf("expected error containing %q, got %v", testCase.message, err)
			}
		})
	}
}

func TestConfigPostgresCalendarDefaultsToDatabaseURL(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	cfg.DatabaseURL = "postgres://charter:secret@db:5432/charterbook"
	cfg.CalendarBackend = "POSTGRES"
	if err := cfg.Validate(); err != nil {
		test.Fatalf("expected valid config, got %v", err)
	}
	if cfg.CalendarBackend != CalendarBackendPostgres || cfg.CalendarURL != cfg.DatabaseURL {
		test.Fatalf("unexpected calendar config: %q %q", cfg.CalendarBackend, cfg.CalendarURL)
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	origins := ParseAllowedOrigins(" http://a.example.com, ,http://b.example.com ")
	if len(origins) != 2 || origins[0] != "http://a.example.com" || origins[1] != "http://b.example.com" {
		test.Fatalf("unexpected origins: %v", origins)
	}
	if len(ParseAllowedOrigins("  ")) != 0 {
		test.Fatalf("expected no origins for blank input")
	}
}
