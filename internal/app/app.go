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

	"github.com/utafrali/facetsearch/internal/config"
	"github.com/utafrali/facetsearch/internal/engine"
	esengine "github.com/utafrali/facetsearch/internal/engine/elasticsearch"
	"github.com/utafrali/facetsearch/internal/engine/memory"
	pgengine "github.com/utafrali/facetsearch/internal/engine/postgres"
	"github.com/utafrali/facetsearch/internal/event"
	handler "github.com/utafrali/facetsearch/internal/handler/http"
	"github.com/utafrali/facetsearch/internal/schema"
	"github.com/utafrali/facetsearch/internal/service"
	"github.com/utafrali/facetsearch/migrations"
	"github.com/utafrali/facetsearch/pkg/database"
	"github.com/utafrali/facetsearch/pkg/health"
	pkgkafka "github.com/utafrali/facetsearch/pkg/kafka"
	"github.com/utafrali/facetsearch/pkg/middleware"
	"github.com/utafrali/facetsearch/pkg/tracing"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// Partially initialized resources are released when it fails.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.tracerShutdown, err = tracing.Init(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if cfg.UsesPostgres() {
		if err := a.connectPostgres(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.UsesRedis() {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	}

	eng, err := a.newEngine(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := a.newRegistry()
	if err != nil {
		return nil, err
	}

	searchService := service.NewSearchService(eng, registry, logger, service.Options{
		QueryTimeout:    cfg.QueryTimeout,
		CatalogURL:      cfg.CatalogServiceURL,
		ReindexPageSize: cfg.ReindexPageSize,
	})

	if cfg.KafkaEnabled {
		a.newConsumer(searchService)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.SetTimeout(cfg.HealthTimeout)
	if p, ok := eng.(engine.Pinger); ok {
		healthHandler.RegisterCritical(cfg.SearchEngine, p.Ping)
	}
	if a.pool != nil {
		healthHandler.RegisterCritical("postgres", a.pool.Ping)
	}
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if cfg.KafkaEnabled {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(searchService, healthHandler, handler.RouterConfig{
		CORS:           corsCfg,
		RequestTimeout: cfg.RequestTimeout,
		ReindexTimeout: cfg.ReindexTimeout,
		AdminToken:     cfg.AdminToken,
		PprofEnabled:   cfg.PprofEnabled,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	cfg := a.cfg
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}
	return nil
}

func (a *App) newEngine(ctx context.Context) (engine.SearchEngine, error) {
	switch a.cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(ctx, esengine.Config{
			URL:     a.cfg.ElasticsearchURL,
			Index:   a.cfg.ElasticsearchIndex,
			Refresh: a.cfg.ElasticsearchRefresh,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		a.logger.Info("elasticsearch search engine initialized",
			slog.String("url", a.cfg.ElasticsearchURL),
			slog.String("index", a.cfg.ElasticsearchIndex),
		)
		return eng, nil
	case config.EnginePostgres:
		a.logger.Info("postgres search engine initialized")
		return pgengine.New(a.pool, a.logger), nil
	default:
		a.logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
}

func (a *App) newRegistry() (schema.Registry, error) {
	var registry schema.Registry
	switch a.cfg.SchemaRegistry {
	case config.RegistryPostgres:
		registry = schema.NewPostgresRegistry(a.pool)
	default:
		static, err := schema.LoadFile(a.cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		registry = static
	}
	a.logger.Info("schema registry initialized",
		slog.String("source", a.cfg.SchemaRegistry),
		slog.String("cache", a.cfg.SchemaCache),
	)

	switch a.cfg.SchemaCache {
	case config.CacheRedis:
		return schema.NewCachedRegistry(registry, schema.NewRedisCache(a.redis), a.cfg.SchemaCacheTTL, a.logger), nil
	case config.CacheMemory:
		return schema.NewCachedRegistry(registry, schema.NewMemoryCache(), a.cfg.SchemaCacheTTL, a.logger), nil
	default:
		return registry, nil
	}
}

func (a *App) newConsumer(searchService *service.SearchService) {
	cfg := a.cfg

	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	if cfg.IdempotencyStore == config.CacheRedis {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, cfg.IdempotencyTTL)
	}

	if cfg.KafkaDLQEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, a.logger)
	}

	eventConsumer := event.NewConsumer(searchService, a.logger)
	a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:      cfg.KafkaBrokers,
		GroupID:      cfg.KafkaGroupID,
		Topics:       event.Topics(),
		MinBytes:     1,
		MaxBytes:     10e6,
		RetryBackoff: time.Duration(cfg.KafkaRetryBackoffMs) * time.Millisecond,
	}, pkgkafka.IdempotentHandler(store, eventConsumer.Handle, a.logger), a.dlq, a.logger)

	a.logger.Info("kafka consumer initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Any("topics", event.Topics()),
		slog.Bool("dlq", a.dlq != nil),
	)
}

// Run starts the HTTP server and the Kafka consumer, blocking until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed", slog.String("error", runErr.Error()))
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	a.release()
	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes the connection-holding resources.
func (a *App) release() {
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		}
		a.dlq = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.tracerShutdown != nil {
		_ = a.tracerShutdown(context.Background())
		a.tracerShutdown = nil
	}
}
