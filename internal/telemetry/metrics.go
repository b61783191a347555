package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики оркестратора.
type Metrics struct {
	// PipelinesStarted — количество созданных pipeline.
	PipelinesStarted prometheus.Counter

	// PipelinesFinished — завершённые pipeline по статусу (COMPLETED/FAILED).
	PipelinesFinished *prometheus.CounterVec

	// StepCompletions — обработанные уведомления о завершении по источнику и статусу.
	StepCompletions *prometheus.CounterVec

	// StepMismatches — уведомления, имя шага в которых не совпало с текущим.
	StepMismatches prometheus.Counter

	// StaleCompletions — уведомления для несуществующих или завершённых pipeline.
	StaleCompletions prometheus.Counter

	// PublishErrors — ошибки публикации уведомлений о старте шага.
	PublishErrors prometheus.Counter

	// HTTPRequests — HTTP запросы по маршруту и коду ответа.
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// nil — регистрация в prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PipelinesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "conductor_pipelines_started_total",
			Help: "Total pipelines created",
		}),
		PipelinesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_pipelines_finished_total",
			Help: "Total pipelines reaching a terminal status",
		}, []string{"status"}),
		StepCompletions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_step_completions_total",
			Help: "Step completion notifications handled",
		}, []string{"source", "status"}),
		StepMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "conductor_step_name_mismatches_total",
			Help: "Completions whose step name differs from the current step",
		}),
		StaleCompletions: f.NewCounter(prometheus.CounterOpts{
			Name: "conductor_stale_completions_total",
			Help: "Completions for unknown or finished pipelines",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "conductor_step_publish_errors_total",
			Help: "Failed step-start publishes",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_http_requests_total",
			Help: "HTTP requests handled",
		}, []string{"method", "route", "status"}),
	}
}

// NewNopMetrics возвращает метрики, не привязанные к глобальному реестру.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// WorkerMetrics — Prometheus метрики моста воркеров.
type WorkerMetrics struct {
	// StepExecutions — выполненные шаги по имени и итоговому статусу.
	StepExecutions *prometheus.CounterVec

	// StepDuration — длительность выполнения шага.
	StepDuration *prometheus.HistogramVec
}

// NewWorkerMetrics регистрирует метрики воркера в reg.
// nil — регистрация в prometheus.DefaultRegisterer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &WorkerMetrics{
		StepExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_worker_step_executions_total",
			Help: "Steps executed by the worker bridge",
		}, []string{"step", "status"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conductor_worker_step_duration_seconds",
			Help:    "Step execution duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"step"}),
	}
}

// NewNopWorkerMetrics возвращает метрики воркера вне глобального реестра.
func NewNopWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetrics(prometheus.NewRegistry())
}
