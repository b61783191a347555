package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// StartPipeline создаёт pipeline, запускает первый шаг и возвращает ID.
//
// При ошибке валидации запись не создаётся. Если запись сохранена,
// но старт шага не опубликован, возвращается ID вместе с ошибкой ErrPublish.
func (o *Orchestrator) StartPipeline(ctx context.Context, name string, steps []string) (string, error) {
	if err := o.validate(name, steps); err != nil {
		return "", err
	}

	p, err := domain.NewPipeline(name, steps)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}

	unlock := o.locks.Lock(p.ID)
	defer unlock()

	step, err := p.StartCurrentStep()
	if err != nil {
		return "", err
	}

	if err := o.save(ctx, p); err != nil {
		return "", err
	}

	o.metrics.PipelinesStarted.Inc()
	o.record(ctx, p, domain.EventPipelineCreated, "")
	o.record(ctx, p, domain.EventStepStarted, step.Name)

	o.logger.Info("pipeline started",
		"pipeline_id", p.ID,
		"name", p.Name,
		"steps", len(p.Steps),
	)

	if err := o.publishStart(ctx, p, step.Name); err != nil {
		return p.ID, err
	}

	return p.ID, nil
}

// OnStepCompleted применяет уведомление о завершении текущего шага.
//
// Уведомление для неизвестного или уже завершённого pipeline
// игнорируется (nil). Имя шага из уведомления не влияет на переход:
// завершается шаг под CurrentStep, несовпадение только логируется.
func (o *Orchestrator) OnStepCompleted(ctx context.Context, ev domain.StepCompletedEvent, source domain.EventSource) error {
	if !ev.Status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCompletionStatus, ev.Status)
	}

	logger := telemetry.WithPipelineID(o.logger, ev.PipelineID)

	unlock := o.locks.Lock(ev.PipelineID)
	defer unlock()

	p, err := o.store.Get(ctx, ev.PipelineID)
	if errors.Is(err, repo.ErrNotFound) {
		o.metrics.StaleCompletions.Inc()
		logger.Debug("completion for unknown pipeline ignored", "step", ev.Step, "source", source)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load pipeline: %w", err)
	}

	if p.IsFinished() {
		o.metrics.StaleCompletions.Inc()
		logger.Debug("completion for finished pipeline ignored",
			"status", p.Status,
			"step", ev.Step,
			"source", source,
		)
		return nil
	}

	current := p.Current()
	if current == nil {
		return fmt.Errorf("%w: running pipeline %s has no current step", domain.ErrInvariant, p.ID)
	}
	if current.Name != ev.Step {
		o.metrics.StepMismatches.Inc()
		logger.Warn("completion step name does not match current step",
			"reported_step", ev.Step,
			"current_step", current.Name,
			"current_index", p.CurrentStep,
			"source", source,
		)
	}

	o.metrics.StepCompletions.WithLabelValues(string(source), string(ev.Status)).Inc()

	if ev.Status == domain.CompletionFailed {
		return o.failStep(ctx, p)
	}
	return o.advance(ctx, p)
}

// failStep переводит текущий шаг и pipeline в FAILED.
func (o *Orchestrator) failStep(ctx context.Context, p *domain.Pipeline) error {
	step, err := p.FailCurrentStep()
	if err != nil {
		return err
	}

	if err := o.save(ctx, p); err != nil {
		return err
	}

	o.metrics.PipelinesFinished.WithLabelValues(string(p.Status)).Inc()
	o.record(ctx, p, domain.EventStepFailed, step.Name)
	o.record(ctx, p, domain.EventPipelineFailed, "")

	o.logger.Warn("pipeline failed",
		"pipeline_id", p.ID,
		"step", step.Name,
		"step_index", p.CurrentStep,
		"duration", time.Since(p.CreatedAt),
	)
	return nil
}

// advance завершает текущий шаг успехом и запускает следующий.
func (o *Orchestrator) advance(ctx context.Context, p *domain.Pipeline) error {
	done := p.Current().Name

	next, err := p.CompleteCurrentStep()
	if err != nil {
		return err
	}

	if err := o.save(ctx, p); err != nil {
		return err
	}

	// Индекс завершённого шага — на один меньше текущего
	o.recordAt(ctx, p, domain.EventStepSucceeded, done, p.CurrentStep-1)

	if next == nil {
		o.metrics.PipelinesFinished.WithLabelValues(string(p.Status)).Inc()
		o.record(ctx, p, domain.EventPipelineCompleted, "")
		o.logger.Info("pipeline completed",
			"pipeline_id", p.ID,
			"steps", len(p.Steps),
			"duration", time.Since(p.CreatedAt),
		)
		return nil
	}

	o.record(ctx, p, domain.EventStepStarted, next.Name)
	o.logger.Debug("pipeline advanced",
		"pipeline_id", p.ID,
		"completed_step", done,
		"next_step", next.Name,
		"step_index", p.CurrentStep,
	)

	return o.publishStart(ctx, p, next.Name)
}

// validate проверяет имя и список шагов до создания записи.
func (o *Orchestrator) validate(name string, steps []string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPipeline)
	}
	if len(steps) == 0 {
		return fmt.Errorf("%w: steps must not be empty", ErrInvalidPipeline)
	}
	for i, s := range steps {
		if !mq.ValidStepName(s) {
			return fmt.Errorf("%w: step %d has invalid name %q", ErrInvalidPipeline, i, s)
		}
	}
	if err := o.catalog.Check(steps); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}
	return nil
}

// save проверяет инварианты и перезаписывает запись целиком.
func (o *Orchestrator) save(ctx context.Context, p *domain.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := o.store.Save(ctx, p); err != nil {
		return fmt.Errorf("save pipeline: %w", err)
	}
	return nil
}

// publishStart публикует старт шага. Запись к этому моменту уже сохранена.
func (o *Orchestrator) publishStart(ctx context.Context, p *domain.Pipeline, step string) error {
	if err := o.publisher.PublishStepStart(ctx, p.ID, step); err != nil {
		o.metrics.PublishErrors.Inc()
		o.logger.Error("failed to publish step start",
			"pipeline_id", p.ID,
			"step", step,
			"error", err,
		)
		return fmt.Errorf("%w: %s: %v", ErrPublish, step, err)
	}
	return nil
}

// record пишет событие о текущем шаге в журнал.
func (o *Orchestrator) record(ctx context.Context, p *domain.Pipeline, evType domain.EventType, step string) {
	o.recordAt(ctx, p, evType, step, p.CurrentStep)
}

// recordAt пишет событие в журнал. Ошибки журнала не влияют на pipeline.
func (o *Orchestrator) recordAt(ctx context.Context, p *domain.Pipeline, evType domain.EventType, step string, index int) {
	if o.journal == nil {
		return
	}

	ev := &domain.PipelineEvent{
		PipelineID: p.ID,
		Type:       evType,
		Step:       step,
		StepIndex:  index,
		CreatedAt:  p.UpdatedAt,
	}
	if err := o.journal.Append(ctx, ev); err != nil {
		o.logger.Warn("failed to append journal event",
			"pipeline_id", p.ID,
			"type", evType,
			"error", err,
		)
	}
}
