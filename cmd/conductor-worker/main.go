// Conductor Worker — мост между шиной pipeline и микросервисами шагов.
//
// Worker:
//   - Получает pipeline.<step>.start для шагов из CONDUCTOR_WORKER_STEPS
//   - Вызывает микросервис шага (http) или ждёт (delay)
//   - Публикует pipeline.<step>.done со статусом SUCCESS или FAILED
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/config"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
	"github.com/shaiso/Conductor/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadWorker(ctx)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		logger.Error("failed to configure executor", "error", err)
		os.Exit(1)
	}

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

	w := worker.New(worker.Config{
		Conn:      mqConn,
		Publisher: mq.NewPublisher(mqConn, logger),
		Registry:  registry,
		Steps:     cfg.Steps,
		Logger:    logger,
		Metrics:   telemetry.NewWorkerMetrics(nil),
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	server.Close()
	w.Stop()
	logger.Info("conductor-worker stopped")
}

// newRegistry создаёт реестр с executor'ом из конфигурации.
func newRegistry(cfg *config.Worker) (*worker.Registry, error) {
	switch cfg.Executor {
	case "http":
		endpoints, err := cfg.EndpointMap()
		if err != nil {
			return nil, err
		}
		return worker.NewRegistry(&worker.HTTPExecutor{
			Endpoints: endpoints,
			Timeout:   cfg.HTTPTimeout,
			Attempts:  cfg.HTTPAttempts,
		}), nil
	case "delay":
		return worker.NewRegistry(&worker.DelayExecutor{Duration: cfg.Delay}), nil
	default:
		return nil, errors.New("unknown executor " + cfg.Executor + ", expected http or delay")
	}
}
