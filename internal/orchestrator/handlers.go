package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
)

// completionTimeout ограничивает обработку события, начатую до остановки listener.
const completionTimeout = 30 * time.Second

// handleStepDone обрабатывает событие pipeline.<step>.done из шины.
func (o *Orchestrator) handleStepDone(ctx context.Context, delivery *mq.Delivery) error {
	ev, err := mq.Decode[mq.StepDonePayload](delivery)
	if err != nil {
		o.logger.Error("failed to parse step done payload",
			"routing_key", delivery.RoutingKey,
			"error", err,
		)
		return err
	}

	o.logger.Debug("received step done event",
		"pipeline_id", ev.PipelineID,
		"step", ev.Step,
		"status", ev.Status,
	)

	if ev.PipelineID == "" {
		o.logger.Warn("step done event without pipeline id", "routing_key", delivery.RoutingKey)
		return nil
	}

	// Остановка listener не прерывает уже принятое событие
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
	defer cancel()

	// Ошибка инфраструктуры: сообщение уходит в DLQ, автоматического retry нет
	return o.OnStepCompleted(ctx, ev, domain.SourceBus)
}
