// Package charterd assembles the reservation daemon: storage, engine, HTTP API, health and background loops.
package charterd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/internal/healthserver"
	"github.com/MarkoPoloResearchLab/charterbook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/charterbook/internal/notify"
	"github.com/MarkoPoloResearchLab/charterbook/internal/payment"
	"github.com/MarkoPoloResearchLab/charterbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/charterbook/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/charterbook/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// App is a fully wired daemon.
type App struct {
	cfg         Config
	logger      *zap.Logger
	handler     http.Handler
	health      *healthserver.Server
	coordinator *reservation.Coordinator
	alerts      *reservation.PriceAlertWatcher
	closers     []func() error
}

// Run builds the daemon from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Warn("shutdown cleanup error", zap.Error(closeErr))
		}
	}()
	return app.Run(ctx)
}

// NewApp opens every backend named by cfg and wires the engine. cfg must already be validated.
func NewApp(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context) error {
	gormDB, cleanup, driver, err := openDatabase(ctx, app.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	app.closers = append(app.closers, cleanup)
	if err := prepareSchema(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	app.logger.Info("database ready", zap.String("driver", driver))
	probes := []healthserver.Option{healthserver.WithProbe("database", sqlDB.PingContext)}

	store := gormstore.New(gormDB)
	calendar, calendarProbe, err := app.openCalendar(ctx, store)
	if err != nil {
		return err
	}
	if calendarProbe != nil {
		probes = append(probes, healthserver.WithProbe("calendar", calendarProbe))
	}
	notifier, notifierProbe, err := app.openNotifier()
	if err != nil {
		return err
	}
	if notifierProbe != nil {
		probes = append(probes, healthserver.WithProbe("notifier", notifierProbe))
	}
	gateway, err := payment.NewGateway(payment.Config{
		BaseURL:   app.cfg.PaymentBaseURL,
		APIKey:    app.cfg.PaymentAPIKey,
		ReturnURL: app.cfg.PaymentReturnURL,
		Timeout:   app.cfg.PaymentTimeout,
	})
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	opts := []reservation.Option{reservation.WithOperationLogger(newOperationLogger(app.logger))}
	guard, err := reservation.NewConflictGuard(calendar, app.cfg.HoldTTL, opts...)
	if err != nil {
		return fmt.Errorf("conflict guard: %w", err)
	}
	pricing, err := reservation.NewPricingResolver(store, opts...)
	if err != nil {
		return fmt.Errorf("pricing resolver: %w", err)
	}
	waitlist, err := reservation.NewWaitlistCoordinator(reservation.WaitlistConfig{
		Store:       store,
		Catalog:     store,
		Guard:       guard,
		Notifier:    notifier,
		OfferWindow: app.cfg.OfferWindow,
	}, opts...)
	if err != nil {
		return fmt.Errorf("waitlist coordinator: %w", err)
	}
	coordinator, err := reservation.NewCoordinator(reservation.CoordinatorConfig{
		Guard:           guard,
		Calendar:        calendar,
		Bookings:        store,
		Pricing:         pricing,
		Catalog:         store,
		Payments:        gateway,
		Waitlist:        waitlist,
		PaymentAttempts: app.cfg.PaymentAttempts,
		PaymentBackoff:  app.cfg.PaymentBackoff,
	}, opts...)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	waitlist.BindBooker(coordinator)
	alerts, err := reservation.NewPriceAlertWatcher(store, store, notifier, opts...)
	if err != nil {
		return fmt.Errorf("price alert watcher: %w", err)
	}

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(app.cfg.SessionSigningKey),
		Issuer:     app.cfg.SessionIssuer,
		CookieName: app.cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: app.cfg.AllowedOrigins,
		ServiceToken:   app.cfg.ServiceToken,
		RequestTimeout: app.cfg.RequestTimeout,
	}, httpapi.Services{
		Guard:       guard,
		Coordinator: coordinator,
		Waitlist:    waitlist,
		Alerts:      alerts,
		Pricing:     pricing,
		Charters:    store,
	}, validator, app.logger)
	if err != nil {
		return fmt.Errorf("http router: %w", err)
	}

	app.handler = router
	app.coordinator = coordinator
	app.alerts = alerts
	app.health = healthserver.New(app.logger, probes...)
	return nil
}

// openCalendar returns the CalendarStore for the configured backend and an optional health probe.
func (app *App) openCalendar(ctx context.Context, store *gormstore.Store) (reservation.CalendarStore, healthserver.Probe, error) {
	switch app.cfg.CalendarBackend {
	case CalendarBackendPostgres:
		pool, err := pgxpool.New(ctx, app.cfg.CalendarURL)
		if err != nil {
			return nil, nil, fmt.Errorf("calendar pool: %w", err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		calendar := pgstore.New(pool)
		if err := calendar.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("calendar schema: %w", err)
		}
		return calendar, pool.Ping, nil
	case CalendarBackendRedis:
		options, err := redis.ParseURL(app.cfg.CalendarURL)
		if err != nil {
			return nil, nil, fmt.Errorf("calendar redis url: %w", err)
		}
		client := redis.NewClient(options)
		app.closers = append(app.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("calendar redis ping: %w", err)
		}
		probe := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return redisstore.New(client, redisstore.WithKeyPrefix(app.cfg.RedisKeyPrefix)), probe, nil
	}
	return store, nil, nil
}

// openNotifier publishes to RabbitMQ when an AMQP url is configured and logs otherwise.
func (app *App) openNotifier() (reservation.Notifier, healthserver.Probe, error) {
	if app.cfg.AMQPURL == "" {
		return notify.NewLogNotifier(app.logger.Named("notify")), nil, nil
	}
	conn, err := amqp.Dial(app.cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	app.closers = append(app.closers, conn.Close)
	channel, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	app.closers = append(app.closers, channel.Close)
	notifier, err := notify.NewAMQPNotifier(channel)
	if err != nil {
		return nil, nil, err
	}
	probe := func(context.Context) error {
		if conn.IsClosed() || channel.IsClosed() {
			return errors.New("amqp connection closed")
		}
		return nil
	}
	return notifier, probe, nil
}

// Handler returns the HTTP API.
func (app *App) Handler() http.Handler {
	return app.handler
}

// Run serves HTTP and gRPC health and drives the hold sweeper and price alert scanner until ctx ends.
func (app *App) Run(ctx context.Context) error {
	healthListener, err := net.Listen("tcp", app.cfg.HealthListenAddr)
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	httpListener, err := net.Listen("tcp", app.cfg.ListenAddr)
	if err != nil {
		_ = healthListener.Close()
		return fmt.Errorf("http listen: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.serveHTTP(groupCtx, httpListener)
	})
	group.Go(func() error {
		return app.health.Serve(groupCtx, healthListener)
	})
	group.Go(func() error {
		return app.health.Watch(groupCtx, app.cfg.HealthInterval)
	})
	group.Go(func() error {
		return app.coordinator.RunSweeper(groupCtx, app.cfg.SweepInterval)
	})
	group.Go(func() error {
		return app.alerts.Run(groupCtx, app.cfg.AlertScanInterval)
	})
	return group.Wait()
}

func (app *App) serveHTTP(ctx context.Context, listener net.Listener) error {
	server := &http.Server{Handler: app.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("charterd listening", zap.String("addr", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			app.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases backends in reverse order of opening.
func (app *App) Close() error {
	var closeErr error
	for index := len(app.closers) - 1; index >= 0; index-- {
		if err := app.closers[index](); err != nil && !errors.Is(err, amqp.ErrClosed) {
			closeErr = errors.Join(closeErr, err)
		}
	}
	app.closers = nil
	return closeErr
}
