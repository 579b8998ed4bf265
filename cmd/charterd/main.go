package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/charterbook/internal/charterd"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagEnvFile           = "env-file"
	flagListenAddr        = "listen-addr"
	flagHealthListenAddr  = "health-listen-addr"
	flagDatabaseURL       = "database-url"
	flagCalendarBackend   = "calendar-backend"
	flagCalendarURL       = "calendar-url"
	flagRedisKeyPrefix    = "redis-key-prefix"
	flagAMQPURL           = "amqp-url"
	flagPaymentBaseURL    = "payment-base-url"
	flagPaymentAPIKey     = "payment-api-key"
	flagPaymentReturnURL  = "payment-return-url"
	flagPaymentTimeout    = "payment-timeout"
	flagPaymentAttempts   = "payment-attempts"
	flagPaymentBackoff    = "payment-backoff"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagServiceToken      = "service-token"
	flagRequestTimeout    = "request-timeout"
	flagHoldTTL           = "hold-ttl"
	flagSweepInterval     = "sweep-interval"
	flagOfferWindow       = "offer-window"
	flagAlertScanInterval = "alert-scan-interval"
	flagHealthInterval    = "health-interval"
	envPrefix             = "CHARTERD"
	defaultEnvFile        = ".env"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "charterd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := charterd.Config{}
	cmd := &cobra.Command{
		Use:           "charterd",
		Short:         "Charter booking engine with holds, waitlists, referrals and price alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return charterd.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagEnvFile, defaultEnvFile, "optional dotenv file loaded before reading CHARTERD_* variables")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagHealthListenAddr, "", "gRPC health listen address")
	cmd.Flags().String(flagDatabaseURL, "", "database url (postgres://, mysql:// or sqlite://)")
	cmd.Flags().String(flagCalendarBackend, "", "calendar store: gorm, postgres or redis")
	cmd.Flags().String(flagCalendarURL, "", "calendar store url for the postgres or redis backend")
	cmd.Flags().String(flagRedisKeyPrefix, "", "key prefix for the redis calendar")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ url for notifications; empty logs notifications instead")
	cmd.Flags().String(flagPaymentBaseURL, "", "payment processor base URL (required)")
	cmd.Flags().String(flagPaymentAPIKey, "", "payment processor API key")
	cmd.Flags().String(flagPaymentReturnURL, "", "URL the processor returns customers to")
	cmd.Flags().Duration(flagPaymentTimeout, 0, "payment processor request timeout")
	cmd.Flags().Int(flagPaymentAttempts, 0, "payment session attempts on transient failures")
	cmd.Flags().Duration(flagPaymentBackoff, 0, "base backoff between payment session attempts")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().String(flagServiceToken, "", "bearer token for webhooks and operator endpoints (required)")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout")
	cmd.Flags().Duration(flagHoldTTL, 0, "how long a pending hold blocks a date (1m-2h)")
	cmd.Flags().Duration(flagSweepInterval, 0, "stale hold sweep interval")
	cmd.Flags().Duration(flagOfferWindow, 0, "how long a promoted waitlist customer has to respond")
	cmd.Flags().Duration(flagAlertScanInterval, 0, "price alert scan interval")
	cmd.Flags().Duration(flagHealthInterval, 0, "dependency health probe interval")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *charterd.Config) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile, cmd.Flags().Changed(flagEnvFile)); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{
		flagListenAddr, flagHealthListenAddr, flagDatabaseURL, flagCalendarBackend, flagCalendarURL,
		flagRedisKeyPrefix, flagAMQPURL, flagPaymentBaseURL, flagPaymentAPIKey, flagPaymentReturnURL,
		flagPaymentTimeout, flagPaymentAttempts, flagPaymentBackoff, flagAllowedOrigins, flagJWTSigningKey,
		flagJWTIssuer, flagJWTCookieName, flagServiceToken, flagRequestTimeout, flagHoldTTL,
		flagSweepInterval, flagOfferWindow, flagAlertScanInterval, flagHealthInterval,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	for _, required := range []string{flagPaymentBaseURL, flagJWTSigningKey, flagServiceToken} {
		if !v.IsSet(required) {
			return fmt.Errorf("%s is required", required)
		}
	}

	cfg.ListenAddr = v.GetString(flagListenAddr)
	cfg.HealthListenAddr = v.GetString(flagHealthListenAddr)
	cfg.DatabaseURL = v.GetString(flagDatabaseURL)
	cfg.CalendarBackend = v.GetString(flagCalendarBackend)
	cfg.CalendarURL = v.GetString(flagCalendarURL)
	cfg.RedisKeyPrefix = v.GetString(flagRedisKeyPrefix)
	cfg.AMQPURL = v.GetString(flagAMQPURL)
	cfg.PaymentBaseURL = v.GetString(flagPaymentBaseURL)
	cfg.PaymentAPIKey = v.GetString(flagPaymentAPIKey)
	cfg.PaymentReturnURL = v.GetString(flagPaymentReturnURL)
	cfg.PaymentTimeout = v.GetDuration(flagPaymentTimeout)
	cfg.PaymentAttempts = v.GetInt(flagPaymentAttempts)
	cfg.PaymentBackoff = v.GetDuration(flagPaymentBackoff)
	cfg.AllowedOrigins = charterd.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = v.GetString(flagJWTIssuer)
	cfg.SessionCookieName = v.GetString(flagJWTCookieName)
	cfg.ServiceToken = v.GetString(flagServiceToken)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.HoldTTL = v.GetDuration(flagHoldTTL)
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.OfferWindow = v.GetDuration(flagOfferWindow)
	cfg.AlertScanInterval = v.GetDuration(flagAlertScanInterval)
	cfg.HealthInterval = v.GetDuration(flagHealthInterval)

	return cfg.Validate()
}

// loadEnvFile reads dotenv values without overriding the real environment.
// A missing default file is fine; a missing explicit file is an error.
func loadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
