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

	"github.com/gitrueng/user-management-app/internal/auth"
	"github.com/gitrueng/user-management-app/internal/config"
	"github.com/gitrueng/user-management-app/internal/event"
	handler "github.com/gitrueng/user-management-app/internal/handler/http"
	"github.com/gitrueng/user-management-app/internal/mail"
	"github.com/gitrueng/user-management-app/internal/repository"
	"github.com/gitrueng/user-management-app/internal/repository/memory"
	"github.com/gitrueng/user-management-app/internal/repository/postgres"
	"github.com/gitrueng/user-management-app/internal/service"
	"github.com/gitrueng/user-management-app/migrations"
	"github.com/gitrueng/user-management-app/pkg/database"
	"github.com/gitrueng/user-management-app/pkg/health"
	"github.com/gitrueng/user-management-app/pkg/httpclient"
	pkgkafka "github.com/gitrueng/user-management-app/pkg/kafka"
	"github.com/gitrueng/user-management-app/pkg/middleware"
	"github.com/gitrueng/user-management-app/pkg/tracing"
)

// App wires together all dependencies and runs the user-management service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dispatcher     *mail.Dispatcher
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Whatever was opened before a failure is released again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler(5 * time.Second)

	repo, err := a.openStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	attempts, err := a.openAttemptTracker(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Domain events stay off unless Kafka is enabled. The nil interface
	// tells the service not to publish.
	var events service.EventPublisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	sender, err := a.mailSender()
	if err != nil {
		return nil, err
	}
	a.dispatcher = mail.NewDispatcher(sender, mail.DispatcherConfig{
		QueueSize:   cfg.MailQueueSize,
		Workers:     cfg.MailWorkers,
		SendTimeout: cfg.MailSendTimeout,
	}, logger)
	logger.Info("mail dispatcher started",
		slog.String("sender", sender.Name()),
		slog.Int("queue_size", cfg.MailQueueSize),
		slog.Int("workers", cfg.MailWorkers),
	)

	composer, err := mail.NewComposer(mail.ComposerConfig{
		From:          cfg.MailFrom,
		FromName:      cfg.MailFromName,
		ClientURL:     cfg.ClientURL,
		VerifyParam:   cfg.ClientVerifyParam,
		ResetParam:    cfg.ClientResetParam,
		VerifySubject: cfg.MailVerifySubject,
		ResetSubject:  cfg.MailResetSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("build mail composer: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("build password hasher: %w", err)
	}

	// Build the dependency graph.
	tokens := auth.NewTokenService(cfg.TokenConfig())
	accountService := service.NewAccountService(repo, hasher, tokens, attempts, composer, a.dispatcher, events,
		service.TokenLifetimes{
			Session:       cfg.JWTExpiration,
			VerifyEmail:   cfg.ClientVerifyExpiration,
			ResetPassword: cfg.ClientResetExpiration,
		},
		logger,
	)

	proxies, err := cfg.TrustedProxies()
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	a.limiter = middleware.NewRateLimiter(cfg.LoginRateRPS, cfg.LoginRateBurst, cfg.LoginRateTTL, logger,
		middleware.WithTrustedProxies(proxies),
	)

	// HTTP router.
	router, err := handler.NewRouter(accountService, tokens, accountService, healthHandler, a.limiter,
		handler.RouterConfig{
			ServiceName: config.ServiceName,
			CORS:        cfg.CORSConfig(),
			Gate: handler.GateConfig{
				Prefix:    cfg.JWTPrefix,
				AllowList: cfg.JWTExcludedURLs,
			},
			PprofCIDRs: cfg.PprofAllowedCIDRs,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the credential store selected by STORE_DRIVER.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (repository.AccountRepository, error) {
	if a.cfg.StoreDriver == config.StoreMemory {
		a.logger.Warn("using in-memory credential store; accounts are lost on restart")
		return memory.NewAccountRepository(), nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.PostgresConfig(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.Int("port", a.cfg.PostgresPort),
		slog.String("database", a.cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	healthHandler.RegisterCritical("postgres", pool.Ping)

	tracer := &database.QueryTracer{SlowThreshold: a.cfg.DBSlowQueryThreshold, Logger: a.logger}
	return postgres.NewAccountRepository(pool, tracer), nil
}

// openAttemptTracker connects Redis for the login lockout. Without Redis the
// service has no lockout and the returned tracker is nil.
func (a *App) openAttemptTracker(ctx context.Context, healthHandler *health.Handler) (auth.AttemptTracker, error) {
	if !a.cfg.RedisEnabled {
		return nil, nil
	}

	client, err := database.NewRedisClient(ctx, a.cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisConfig().Addr()),
		slog.Int("max_attempts", a.cfg.LoginMaxAttempts),
		slog.Duration("lock_window", a.cfg.LoginLockWindow),
	)

	healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return auth.NewRedisAttemptTracker(client, a.cfg.LoginMaxAttempts, a.cfg.LoginLockWindow), nil
}

func (a *App) mailSender() (mail.Sender, error) {
	switch a.cfg.MailSender {
	case config.MailSenderKafka:
		if a.producer == nil {
			return nil, errors.New("kafka mail sender requires the kafka producer")
		}
		return mail.NewKafkaSender(a.producer), nil
	case config.MailSenderRelay:
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("mail-relay"),
			a.logger,
		)
		return mail.NewRelaySender(client, a.cfg.MailRelayURL), nil
	default:
		return mail.NewLogSender(a.logger), nil
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Mail dispatcher (deliver what the drained requests queued)
// 3. Tracer (flush pending spans)
// 4. Kafka producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.release()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release stops everything except the HTTP server. Components that were
// never opened are skipped.
func (a *App) release() []error {
	var errs []error

	if a.limiter != nil {
		a.limiter.Close()
	}

	// 2. Deliver queued mail (5s budget).
	if a.dispatcher != nil {
		mailCtx, mailCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer mailCancel()
		if err := a.dispatcher.Close(mailCtx); err != nil && !errors.Is(err, mail.ErrDispatcherClosed) {
			a.logger.Error("mail dispatcher shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Flush pending spans after the drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	// 4. Close clients.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}

	return errs
}
