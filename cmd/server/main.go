package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/syncops/eventhooks/internal/api"
	"github.com/syncops/eventhooks/internal/config"
	"github.com/syncops/eventhooks/internal/engine"
	"github.com/syncops/eventhooks/internal/observability"
	"github.com/syncops/eventhooks/internal/store"
	"github.com/syncops/eventhooks/internal/store/sqlitestore"
	ws "github.com/syncops/eventhooks/internal/websocket"
	"github.com/syncops/eventhooks/internal/worker"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// appStore is everything the server needs from persistence.
type appStore interface {
	api.Store
	engine.EventStore
	engine.WebhookRegistry
	api.Pinger
}

var (
	_ appStore = (*store.PostgresStore)(nil)
	_ appStore = (*sqlitestore.Store)(nil)
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	tracer := observability.NewTracer()
	if tp != nil {
		otel.SetTracerProvider(tp)
		tracer = observability.NewTracerFrom(tp)
		logger.Info("exporting traces", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)
	}

	deliverer := worker.NewDeliverer(cfg.DeliveryTimeout, logger)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	observers := []engine.DeliveryObserver{hub, metrics}

	deps := api.Deps{
		Store:        db,
		Clients:      hub,
		Feed:         hub.HandleWebSocket,
		Prometheus:   metrics.Handler(),
		Pingers:      map[string]api.Pinger{"database": db},
		AutoDispatch: cfg.AutoDispatch,
		Logger:       logger,
	}

	var queue *engine.TriggerQueue
	if cfg.RedisURL != "" {
		redisClient, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("connected to Redis")

		health := engine.NewHealthTracker(redisClient, cfg.HealthFailureThreshold, logger)
		observers = append(observers, health)
		queue = engine.NewTriggerQueue(redisClient)

		deps.Queue = queue
		deps.Health = health
		deps.Limiter = engine.NewRateLimiter(redisClient, cfg.TriggerRateLimit, logger)
		deps.Pingers["redis"] = redisPinger{client: redisClient}
	} else {
		logger.Warn("REDIS_URL not set; automatic dispatch, health tracking and trigger rate limiting are disabled")
	}

	dispatcher := engine.NewDispatcher(db, db, deliverer, logger,
		engine.WithMaxParallel(cfg.DispatchMaxParallel),
		engine.WithObservers(observers...),
		engine.WithTracer(tracer),
	)
	deps.Dispatcher = dispatcher

	var pool *worker.Pool
	pollCtx, stopPolling := context.WithCancel(ctx)
	pollerDone := make(chan struct{})
	if queue != nil {
		pool = worker.NewPool(cfg.NumWorkers, dispatcher, logger)
		pool.Start(ctx)
		go func() {
			defer close(pollerDone)
			worker.NewPoller(queue, pool, logger).Start(pollCtx)
		}()
	} else {
		close(pollerDone)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DeliveryTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop polling, then let queued and in-flight dispatches settle.
	stopPolling()
	<-pollerDone
	if pool != nil {
		pool.Stop()
	}
	shutdownTracing(shutdownCtx, tp, logger)
	cancel()

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (appStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened SQLite store", "path", cfg.SQLitePath)
		return s, func() { s.Close() }, nil

	default:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to PostgreSQL")

		if err := pg.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
			pg.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
		return pg, pg.Close, nil
	}
}

// shutdownTracing flushes buffered spans before exit.
func shutdownTracing(ctx context.Context, tp *sdktrace.TracerProvider, logger *slog.Logger) {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}
}
