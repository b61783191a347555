package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pipeline — один экземпляр workflow, проходящий по упорядоченному списку шагов.
//
// Запись pipeline хранится целиком в key-value хранилище и при каждом
// изменении перезаписывается полностью. Изменяет её только Orchestrator.
type Pipeline struct {
	// ID — уникальный идентификатор, назначается при создании.
	ID string `json:"id"`

	// Name — пользовательская метка pipeline.
	Name string `json:"name"`

	// Status — текущий статус pipeline.
	Status PipelineStatus `json:"status"`

	// Steps — шаги в порядке выполнения. Длина и порядок не меняются.
	Steps []Step `json:"steps"`

	// CurrentStep — индекс активного шага (0-based).
	// Равен len(Steps) только в статусе COMPLETED.
	CurrentStep int `json:"currentStep"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt — время последней записи в хранилище.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Step — шаг pipeline, соответствует одной возможности воркера.
type Step struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}

// NewPipeline создаёт pipeline в статусе RUNNING со всеми шагами PENDING.
// Первый шаг переводится в RUNNING отдельно, через StartCurrentStep.
func NewPipeline(name string, stepNames []string) (*Pipeline, error) {
	if len(stepNames) == 0 {
		return nil, ErrNoSteps
	}

	steps := make([]Step, len(stepNames))
	for i, s := range stepNames {
		steps[i] = Step{Name: s, Status: StepStatusPending}
	}

	return &Pipeline{
		ID:          uuid.New().String(),
		Name:        name,
		Status:      PipelineStatusRunning,
		Steps:       steps,
		CurrentStep: 0,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsFinished возвращает true, если pipeline в финальном статусе.
func (p *Pipeline) IsFinished() bool {
	return p.Status.IsTerminal()
}

// Current возвращает активный шаг или nil, если шаги закончились.
func (p *Pipeline) Current() *Step {
	if p.CurrentStep < 0 || p.CurrentStep >= len(p.Steps) {
		return nil
	}
	return &p.Steps[p.CurrentStep]
}

// StartCurrentStep переводит текущий шаг в RUNNING.
func (p *Pipeline) StartCurrentStep() (*Step, error) {
	if p.Status != PipelineStatusRunning {
		return nil, ErrNotRunning
	}
	step := p.Current()
	if step == nil {
		return nil, fmt.Errorf("%w: current step %d out of range", ErrInvariant, p.CurrentStep)
	}
	step.Status = StepStatusRunning
	return step, nil
}

// CompleteCurrentStep помечает текущий шаг как SUCCESS и сдвигает указатель.
//
// Возвращает следующий шаг (уже в RUNNING) или nil, если это был
// последний шаг и pipeline перешёл в COMPLETED.
func (p *Pipeline) CompleteCurrentStep() (*Step, error) {
	if p.Status != PipelineStatusRunning {
		return nil, ErrNotRunning
	}
	step := p.Current()
	if step == nil {
		return nil, fmt.Errorf("%w: current step %d out of range", ErrInvariant, p.CurrentStep)
	}

	step.Status = StepStatusSuccess
	p.CurrentStep++

	if p.CurrentStep == len(p.Steps) {
		p.Status = PipelineStatusCompleted
		return nil, nil
	}

	return p.StartCurrentStep()
}

// FailCurrentStep помечает текущий шаг и весь pipeline как FAILED.
// CurrentStep после этого не меняется.
func (p *Pipeline) FailCurrentStep() (*Step, error) {
	if p.Status != PipelineStatusRunning {
		return nil, ErrNotRunning
	}
	step := p.Current()
	if step == nil {
		return nil, fmt.Errorf("%w: current step %d out of range", ErrInvariant, p.CurrentStep)
	}

	step.Status = StepStatusFailed
	p.Status = PipelineStatusFailed
	return step, nil
}

// Validate проверяет инварианты записи.
//
//   - RUNNING: шаги до CurrentStep — SUCCESS, текущий — RUNNING, после — PENDING
//   - COMPLETED: CurrentStep == len(Steps), все шаги SUCCESS
//   - FAILED: шаги до CurrentStep — SUCCESS, текущий — FAILED, после — PENDING
func (p *Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	if p.CurrentStep < 0 || p.CurrentStep > len(p.Steps) {
		return fmt.Errorf("%w: current step %d out of range [0, %d]", ErrInvariant, p.CurrentStep, len(p.Steps))
	}

	var current StepStatus
	switch p.Status {
	case PipelineStatusRunning:
		current = StepStatusRunning
	case PipelineStatusFailed:
		current = StepStatusFailed
	case PipelineStatusCompleted:
		if p.CurrentStep != len(p.Steps) {
			return fmt.Errorf("%w: completed pipeline at step %d of %d", ErrInvariant, p.CurrentStep, len(p.Steps))
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, p.Status)
	}

	if p.Status != PipelineStatusCompleted && p.CurrentStep == len(p.Steps) {
		return fmt.Errorf("%w: %s pipeline has no current step", ErrInvariant, p.Status)
	}

	for i, s := range p.Steps {
		want := StepStatusPending
		switch {
		case i < p.CurrentStep:
			want = StepStatusSuccess
		case i == p.CurrentStep:
			want = current
		}
		if s.Status != want {
			return fmt.Errorf("%w: step %d (%s) is %s, expected %s", ErrInvariant, i, s.Name, s.Status, want)
		}
	}

	return nil
}

// StepNames возвращает имена шагов в порядке выполнения.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}
