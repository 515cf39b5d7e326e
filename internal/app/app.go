package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/checkout-saga/internal/client"
	"github.com/utafrali/checkout-saga/internal/config"
	"github.com/utafrali/checkout-saga/internal/event"
	handler "github.com/utafrali/checkout-saga/internal/handler/http"
	"github.com/utafrali/checkout-saga/internal/lock"
	"github.com/utafrali/checkout-saga/internal/repository/postgres"
	"github.com/utafrali/checkout-saga/internal/service"
	"github.com/utafrali/checkout-saga/migrations"
	"github.com/utafrali/checkout-saga/pkg/database"
	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/health"
	"github.com/utafrali/checkout-saga/pkg/httpclient"
	pkgkafka "github.com/utafrali/checkout-saga/pkg/kafka"
	"github.com/utafrali/checkout-saga/pkg/tracing"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})

	deps := service.Deps{
		Attempts: postgres.NewAttemptRepository(a.pool, database.NewQueryObserver(cfg.DBSlowQueryThreshold, logger)),
	}

	if cfg.SerializePerUser {
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		deps.Locker = lock.NewRedisLocker(a.redis, cfg.LockTTL)
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		logger.Info("per-user checkout lock enabled",
			slog.String("redis_addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.LockTTL),
		)
	}

	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		deps.Events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// One breaker per downstream so a failing inventory service does not
	// short-circuit calls to the basket. Saga steps are never retried.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.HTTPClientTimeout,
		MaxConnsPerHost: 50,
	})
	deps.Basket = client.NewBasketClient(a.breaker(baseClient, "basket-service"), cfg.BasketServiceURL)
	deps.Orders = client.NewOrderClient(a.breaker(baseClient, "order-service"), cfg.OrderServiceURL)
	deps.Inventory = client.NewInventoryClient(a.breaker(baseClient, "inventory-service"), cfg.InventoryServiceURL)

	checkoutService := service.NewCheckoutService(deps,
		service.Policy{
			CompensateOnCleanupFailure: cfg.CompensateOnCleanupFailure,
			SerializePerUser:           cfg.SerializePerUser,
			CompensationTimeout:        cfg.SagaCompensationTimeout,
		},
		service.StepTimeouts{
			Basket:    cfg.SagaBasketTimeout,
			Order:     cfg.SagaOrderTimeout,
			Inventory: cfg.SagaInventoryTimeout,
		},
		logger,
	)

	router := handler.NewRouter(checkoutService, healthHandler, handler.RouterConfig{
		ServiceName:   cfg.ServiceName,
		CheckoutRPS:   cfg.CheckoutRateLimitRPS,
		CheckoutBurst: cfg.CheckoutRateLimitBurst,

		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	// WriteTimeout leaves room for every forward step plus a full compensation.
	writeTimeout := cfg.SagaBasketTimeout*2 + cfg.SagaOrderTimeout*2 +
		cfg.SagaCompensationTimeout + 15*time.Second
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) breaker(base *httpclient.Client, name string) *httpclient.CircuitBreakerClient {
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  a.cfg.CBMaxRequests,
		Interval:     a.cfg.CBInterval,
		Timeout:      a.cfg.CBTimeout,
		FailureRatio: a.cfg.CBFailureRatio,
		MinRequests:  a.cfg.CBMinRequests,
	}
	a.logger.Info("circuit breaker initialized",
		slog.String("name", name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Duration("timeout", cbCfg.Timeout),
	)
	return httpclient.NewCircuitBreakerClient(base, cbCfg, a.logger).WithFallback(circuitOpen(name))
}

// circuitOpen turns an open breaker into a ServiceUnavailable error naming
// the downstream service.
func circuitOpen(name string) httpclient.FallbackFunc {
	return func(context.Context, error) (*http.Response, error) {
		return nil, apperrors.ServiceUnavailable(name + " is unavailable: circuit open")
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeResources()
		return err
	}

	return a.Shutdown()
}

// Shutdown drains in-flight checkouts, then flushes spans and closes the
// Kafka producer, Redis client and PostgreSQL pool in that order.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// In-flight sagas may be compensating; give them the full undo budget.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything NewApp opened. Nil resources are skipped
// so it is safe to call from a partially built App.
func (a *App) closeResources() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
