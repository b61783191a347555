package worker

import (
	"context"
	"fmt"
)

// Task — один запуск шага, полученный из pipeline.<step>.start.
type Task struct {
	PipelineID string `json:"pipelineId"`
	Step       string `json:"step"`
}

// Executor выполняет шаг.
//
// error — инфраструктурный сбой, после которого результат неизвестен
// (отмена ctx). Логический отказ шага возвращается через ExecutionResult.Error.
type Executor interface {
	Execute(ctx context.Context, task *Task) (*ExecutionResult, error)
}

// ExecutionResult — результат выполнения шага.
type ExecutionResult struct {
	// Outputs — выходные данные выполнения (только для логов).
	Outputs map[string]any

	// Error — сообщение об ошибке. Непустое значение означает FAILED.
	Error string
}

// Registry — реестр executor'ов по имени шага.
type Registry struct {
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry создаёт реестр. fallback используется для шагов без
// собственного executor'а и может быть nil.
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		fallback:  fallback,
	}
}

// Register добавляет executor для шага.
func (r *Registry) Register(step string, executor Executor) {
	r.executors[step] = executor
}

// Get возвращает executor для шага.
func (r *Registry) Get(step string) (Executor, error) {
	if executor, ok := r.executors[step]; ok {
		return executor, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
}
