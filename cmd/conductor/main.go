// Conductor — оркестратор pipelines.
//
// Один процесс:
//   - HTTP API (/pipeline/*) для запуска pipelines и callback'ов воркеров
//   - Подписка на pipeline.*.done в RabbitMQ
//   - Записи pipeline в Redis, журнал переходов в PostgreSQL (опционально)
//   - /healthz и /metrics
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conductor/internal/api"
	"github.com/shaiso/Conductor/internal/catalog"
	"github.com/shaiso/Conductor/internal/config"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Каталог шагов
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		logger.Error("failed to load step catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("step catalog loaded", "steps", len(cat.Steps), "strict", cat.Strict)

	// Redis
	rdb, err := repo.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	store := repo.NewPipelineStore(rdb)

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.AMQP.URL, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("rabbitmq connected")

	if err := mq.SetupTopology(mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Debug("topology declared", "topology", mq.TopologyInfo())

	publisher := mq.NewPublisher(mqConn, logger)

	// Журнал переходов (опционально)
	orchCfg := orchestrator.Config{
		Store:     store,
		Publisher: publisher,
		Catalog:   cat,
		Conn:      mqConn,
		Logger:    logger,
	}
	apiCfg := api.Config{
		Store:   store,
		Catalog: cat,
		Logger:  logger,
	}

	if cfg.Journal.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.Journal.DBURL)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		events := repo.NewEventRepo(pool)
		if err := events.Migrate(ctx); err != nil {
			logger.Error("failed to migrate journal", "error", err)
			os.Exit(1)
		}

		orchCfg.Journal = events
		apiCfg.History = events
		logger.Info("journal enabled")
	}

	metrics := telemetry.NewMetrics(nil)
	orchCfg.Metrics = metrics
	apiCfg.Metrics = metrics

	orch := orchestrator.New(orchCfg)
	apiCfg.Pipelines = orch

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP: API + /healthz + /metrics
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		api.NewHandler(apiCfg).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Ожидаем сигнал завершения или падение сервера
		<-gctx.Done()

		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		err := server.Shutdown(shutdownCtx)
		orch.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("conductor stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("conductor stopped")
}

// loadCatalog загружает каталог из файла или возвращает встроенный.
// CONDUCTOR_CATALOG_STRICT включает строгий режим в любом случае.
func loadCatalog(cfg config.Catalog) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if cfg.Path != "" {
		var err error
		if cat, err = catalog.Load(cfg.Path); err != nil {
			return nil, err
		}
	}
	if cfg.Strict {
		cat.Strict = true
	}
	return cat, nil
}
