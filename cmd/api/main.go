package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/amaan667/servio-fusion/config"
	"github.com/amaan667/servio-fusion/internal/repositories/catalogitem"
	"github.com/amaan667/servio-fusion/internal/repositories/importrun"
	"github.com/amaan667/servio-fusion/pkg/database"
	"github.com/amaan667/servio-fusion/pkg/events"
	"github.com/amaan667/servio-fusion/pkg/importer"
	"github.com/amaan667/servio-fusion/pkg/kafka"
	"github.com/amaan667/servio-fusion/pkg/layout"
	"github.com/amaan667/servio-fusion/pkg/logging"
	"github.com/amaan667/servio-fusion/pkg/matching"
	"github.com/amaan667/servio-fusion/pkg/middleware"
	"github.com/amaan667/servio-fusion/pkg/redis"
	catalogroutes "github.com/amaan667/servio-fusion/pkg/routes/catalog"
	"github.com/amaan667/servio-fusion/pkg/routes/health"
	"github.com/amaan667/servio-fusion/pkg/routes/imports"
	"github.com/amaan667/servio-fusion/pkg/routes/tenant"
	"github.com/amaan667/servio-fusion/pkg/source"
	"github.com/amaan667/servio-fusion/pkg/startup"
	"github.com/amaan667/servio-fusion/pkg/tracing"
	"github.com/amaan667/servio-fusion/pkg/vision"
)

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &application{cfg: cfg, logger: logger}

	boot := startup.New(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&startup.Func{
		Name:    "postgres",
		StartFn: app.startPostgres,
		StopFn:  app.stopPostgres,
	})
	boot.AddDependency(&startup.Func{
		Name:      "redis",
		Upstreams: []string{"postgres"},
		StartFn:   app.startRedis,
		StopFn:    app.stopRedis,
	})
	boot.AddDependency(&startup.Func{
		Name:      "kafka",
		Upstreams: []string{"postgres"},
		StartFn:   app.startKafka,
		StopFn:    app.stopKafka,
	})
	boot.AddDependency(&startup.Func{
		Name:      "pipeline",
		Upstreams: []string{"postgres", "redis", "kafka"},
		StartFn:   app.startPipeline,
		StopFn:    app.stopPipeline,
	})
	boot.AddDependency(&startup.Func{
		Name:      "http",
		Upstreams: []string{"pipeline"},
		StartFn:   app.startHTTP,
		StopFn:    app.stopHTTP,
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	_ = tp.Shutdown(shutdownCtx)
}

// application holds the long-lived service components
type application struct {
	cfg    *config.Config
	logger ectologger.Logger

	db        database.DB
	redis     *redis.Client
	cache     *redis.CatalogCache
	producer  *kafka.Producer
	emitter   *events.Emitter
	extractor *vision.GeminiExtractor
	pipeline  *importer.Pipeline
	checker   *health.Checker
	server    *echo.Echo
}

func (a *application) startPostgres(ctx context.Context) error {
	cfg := a.cfg

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	db := database.NewDatabaseInstance(sqlxDB, a.logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	a.db = db

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

func (a *application) stopPostgres(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *application) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled {
		a.logger.Info("Redis cache is disabled")
		return nil
	}

	client, err := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.cache = redis.NewCatalogCache(client, a.cfg.CatalogCacheTTL, a.logger)
	return nil
}

func (a *application) stopRedis(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *application) startKafka(ctx context.Context) error {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("Kafka event emission is disabled")
		a.emitter = events.NewEmitter(nil, a.logger)
		return nil
	}

	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	a.emitter = events.NewEmitter(a.producer, a.logger)
	return nil
}

func (a *application) stopKafka(ctx context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *application) startPipeline(ctx context.Context) error {
	cfg := a.cfg

	extractor, err := vision.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.VisionTimeout, a.logger)
	if err != nil {
		return fmt.Errorf("creating vision extractor: %w", err)
	}
	a.extractor = extractor

	fetcher := source.NewHTTPFetcher(cfg.SourceFetchTimeout, a.logger)
	matcher := matching.NewMatcher(cfg.MatchThreshold, a.logger)
	layoutGen := layout.NewGenerator(cfg.ItemsPerPage, cfg.CollisionEpsilon, a.logger)

	catalogRepo := catalogitem.NewRepository(a.db, a.logger)
	runRepo := importrun.NewRepository(a.db, a.logger)

	pipelineCfg := importer.DefaultConfig()
	pipelineCfg.SourceRetryAttempts = uint(cfg.SourceFetchRetryAttempts)
	pipelineCfg.VisionRetryAttempts = uint(cfg.VisionRetryAttempts)
	pipelineCfg.HintConcurrency = cfg.HintExtractionConcurrency

	a.pipeline = importer.NewPipeline(
		a.logger,
		fetcher,
		extractor,
		matcher,
		layoutGen,
		catalogRepo,
		runRepo,
		a.emitter,
		a.cache,
		pipelineCfg,
	)
	return nil
}

func (a *application) stopPipeline(ctx context.Context) error {
	if a.extractor == nil {
		return nil
	}
	return a.extractor.Close()
}

func (a *application) startHTTP(ctx context.Context) error {
	cfg := a.cfg

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("creating di container: %w", err)
	}

	catalogRepo := catalogitem.NewRepository(a.db, a.logger)
	runRepo := importrun.NewRepository(a.db, a.logger)

	if err := registerInstances(container,
		instance[ectologger.Logger]{a.logger},
		instance[database.DB]{a.db},
		instance[*catalogitem.Repository]{catalogRepo},
		instance[*importrun.Repository]{runRepo},
		instance[*importer.Pipeline]{a.pipeline},
		instance[*redis.CatalogCache]{a.cache},
		instance[*events.Emitter]{a.emitter},
	); err != nil {
		return fmt.Errorf("registering dependencies: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(diMiddleware(container))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	api := e.Group("/api/v1")
	imports.Register(api.Group("/imports"))
	catalogroutes.Register(api.Group("/catalog"))
	tenant.Register(api)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPinger health.Pinger
	if a.redis != nil {
		redisPinger = a.redis
	}
	a.checker = health.NewChecker(a.db, redisPinger, os.Getenv("APP_VERSION"))
	a.checker.RegisterRoutes(e)

	a.server = e

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	a.checker.SetReady(true)
	a.logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)
	return nil
}

func (a *application) stopHTTP(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if a.checker != nil {
		a.checker.SetReady(false)
	}
	return a.server.Shutdown(ctx)
}
