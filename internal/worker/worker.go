package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

const defaultPrefetch = 1

// DonePublisher — публикация уведомлений о завершении шага.
type DonePublisher interface {
	PublishStepDone(ctx context.Context, payload mq.StepDonePayload) error
}

// Worker — мост между шиной и микросервисами шагов.
//
// Для каждого обслуживаемого шага:
//   - Получает pipeline.<step>.start из своей очереди
//   - Выполняет шаг через Executor из Registry
//   - Публикует pipeline.<step>.done со статусом SUCCESS или FAILED
//
// Несколько экземпляров могут обслуживать один шаг: очередь шага общая.
type Worker struct {
	conn      *mq.Connection
	publisher DonePublisher
	registry  *Registry
	steps     []string
	prefetch  int

	consumers []*mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.WorkerMetrics
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// MQ
	Conn      *mq.Connection
	Publisher DonePublisher

	// Registry — executor'ы по имени шага (обязательно).
	Registry *Registry

	// Steps — обслуживаемые шаги.
	Steps []string

	// Prefetch — сообщений на очередь шага (default: 1).
	Prefetch int

	Logger  *slog.Logger
	Metrics *telemetry.WorkerMetrics
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNopWorkerMetrics()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		conn:      cfg.Conn,
		publisher: cfg.Publisher,
		registry:  cfg.Registry,
		steps:     cfg.Steps,
		prefetch:  prefetch,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start объявляет очереди шагов и запускает по consumer'у на шаг.
func (w *Worker) Start(ctx context.Context) error {
	if len(w.steps) == 0 {
		return errors.New("worker has no steps to serve")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	for _, step := range w.steps {
		if _, err := w.registry.Get(step); err != nil {
			cancel()
			return err
		}

		queue, err := mq.SetupStepQueue(w.conn, step)
		if err != nil {
			cancel()
			return fmt.Errorf("setup queue for step %s: %w", step, err)
		}

		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(queue),
			Handler:  w.handlerFor(step),
			Prefetch: w.prefetch,
			// Результат не доставлен — шаг выполнится повторно
			RequeueOnError: true,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func(step string) {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("step consumer error", "step", step, "error", err)
			}
		}(step)
	}

	w.logger.Info("worker started", "steps", w.steps, "prefetch", w.prefetch)
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	for _, c := range w.consumers {
		c.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}
