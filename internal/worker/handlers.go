package worker

import (
	"context"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// handlerFor возвращает обработчик очереди шага step.
func (w *Worker) handlerFor(step string) mq.Handler {
	return func(ctx context.Context, delivery *mq.Delivery) error {
		return w.handleStepStart(ctx, step, delivery)
	}
}

// handleStepStart обрабатывает событие pipeline.<step>.start.
func (w *Worker) handleStepStart(ctx context.Context, step string, delivery *mq.Delivery) error {
	payload, err := mq.Decode[mq.StepStartPayload](delivery)
	if err != nil {
		w.logger.Error("failed to parse step start payload",
			"step", step,
			"routing_key", delivery.RoutingKey,
			"error", err,
		)
		return err
	}

	if payload.PipelineID == "" {
		w.logger.Warn("step start event without pipeline id", "routing_key", delivery.RoutingKey)
		return nil
	}

	if payload.Step != "" && payload.Step != step {
		w.logger.Warn("step start payload does not match queue",
			"pipeline_id", payload.PipelineID,
			"queue_step", step,
			"payload_step", payload.Step,
		)
	}

	return w.process(ctx, &Task{PipelineID: payload.PipelineID, Step: step})
}

// process выполняет шаг и публикует результат.
func (w *Worker) process(ctx context.Context, task *Task) error {
	logger := telemetry.WithStep(telemetry.WithPipelineID(w.logger, task.PipelineID), task.Step)
	logger.Info("step started")

	start := time.Now()
	status, errMsg, err := w.execute(ctx, task)
	if err != nil {
		logger.Warn("step interrupted", "error", err)
		return err
	}

	w.metrics.StepExecutions.WithLabelValues(task.Step, string(status)).Inc()
	w.metrics.StepDuration.WithLabelValues(task.Step).Observe(time.Since(start).Seconds())

	if status == domain.CompletionFailed {
		logger.Warn("step failed", "duration", time.Since(start), "error", errMsg)
	} else {
		logger.Info("step succeeded", "duration", time.Since(start))
	}

	if err := w.publisher.PublishStepDone(ctx, mq.StepDonePayload{
		PipelineID: task.PipelineID,
		Step:       task.Step,
		Status:     status,
	}); err != nil {
		logger.Error("failed to publish step done", "status", status, "error", err)
		return err
	}

	return nil
}

// execute выполняет шаг через executor и сводит результат к статусу завершения.
func (w *Worker) execute(ctx context.Context, task *Task) (domain.CompletionStatus, string, error) {
	executor, err := w.registry.Get(task.Step)
	if err != nil {
		return domain.CompletionFailed, err.Error(), nil
	}

	result, err := executor.Execute(ctx, task)
	if err != nil {
		return "", "", err
	}

	if result != nil && result.Error != "" {
		return domain.CompletionFailed, result.Error, nil
	}
	return domain.CompletionSuccess, "", nil
}
