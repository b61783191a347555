package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Conductor/internal/catalog"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// PipelineStore — хранилище записей pipeline.
type PipelineStore interface {
	Save(ctx context.Context, p *domain.Pipeline) error
	Get(ctx context.Context, id string) (*domain.Pipeline, error)
}

// StepPublisher — публикация уведомлений о старте шага.
type StepPublisher interface {
	PublishStepStart(ctx context.Context, pipelineID, step string) error
}

// Journal — журнал переходов. Необязателен.
type Journal interface {
	Append(ctx context.Context, ev *domain.PipelineEvent) error
}

// Orchestrator управляет жизненным циклом pipelines.
//
// Orchestrator — единственный компонент, изменяющий записи pipeline:
//   - Создаёт pipeline и публикует старт первого шага
//   - Обрабатывает уведомления о завершении шагов
//   - Публикует старт следующего шага или финализирует pipeline
type Orchestrator struct {
	store     PipelineStore
	publisher StepPublisher
	journal   Journal
	catalog   *catalog.Catalog

	// MQ
	conn     *mq.Connection
	listener *mq.Consumer

	// Per-pipeline блокировки
	locks *keyedMutex

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — хранилище записей pipeline (обязательно).
	Store PipelineStore

	// Publisher — публикация старта шагов (обязательно).
	Publisher StepPublisher

	// Journal — журнал переходов (опционально).
	Journal Journal

	// Catalog — каталог шагов (опционально).
	Catalog *catalog.Catalog

	// Conn — соединение с RabbitMQ для подписки на pipeline.*.done.
	// nil — оркестратор принимает завершения только через API.
	Conn *mq.Connection

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}

	return &Orchestrator{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		journal:   cfg.Journal,
		catalog:   cfg.Catalog,
		conn:      cfg.Conn,
		locks:     newKeyedMutex(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Start подписывается на уведомления о завершении шагов.
//
// Подписка одна на процесс: очередь pipeline.steps.done с шаблоном
// pipeline.*.done, prefetch 1. Сообщения обрабатываются строго по одному.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.conn == nil {
		return ErrListenerUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.listener = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:          string(mq.QueueStepsDone),
		Handler:        o.handleStepDone,
		Prefetch:       1,
		RequeueOnError: false,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("completion listener error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started", "queue", mq.QueueStepsDone, "pattern", mq.RoutingPatternStepDone)
	return nil
}

// Stop останавливает подписку и ждёт завершения обработки текущего сообщения.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.listener != nil {
		o.listener.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}
