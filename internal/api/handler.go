package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conductor/internal/catalog"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// Pipelines — операции оркестратора, доступные через API.
type Pipelines interface {
	StartPipeline(ctx context.Context, name string, steps []string) (string, error)
	OnStepCompleted(ctx context.Context, ev domain.StepCompletedEvent, source domain.EventSource) error
}

// PipelineReader — чтение записей pipeline.
type PipelineReader interface {
	Get(ctx context.Context, id string) (*domain.Pipeline, error)
}

// HistoryReader — чтение журнала переходов.
type HistoryReader interface {
	ListByPipeline(ctx context.Context, pipelineID string) ([]domain.PipelineEvent, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipelines Pipelines
	store     PipelineReader
	history   HistoryReader
	catalog   *catalog.Catalog
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Config — конфигурация для создания Handler.
type Config struct {
	Pipelines Pipelines
	Store     PipelineReader

	// History — журнал переходов. nil — /pipeline/history отвечает 404.
	History HistoryReader

	// Catalog — каталог шагов для /pipeline/steps. nil — каталог по умолчанию.
	Catalog *catalog.Catalog

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}

	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Default()
	}

	return &Handler{
		pipelines: cfg.Pipelines,
		store:     cfg.Store,
		history:   cfg.History,
		catalog:   cat,
		logger:    logger,
		metrics:   metrics,
	}
}
